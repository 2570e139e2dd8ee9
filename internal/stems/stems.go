package stems

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/stemx/internal/models"
)

// StemType identifies one exportable stem.
//
// Mapping onto separation output:
//   - Acapella → vocals.mp3
//   - Drums → drums.mp3
//   - Bass → bass.mp3
//   - Melody → other.mp3
//   - Instrumental → other + drums + bass (combined mix)
type StemType int

const (
	StemAcapella StemType = iota
	StemDrums
	StemBass
	StemMelody
	StemInstrumental
)

func (s StemType) String() string {
	switch s {
	case StemAcapella:
		return "Acapella"
	case StemDrums:
		return "Drums"
	case StemBass:
		return "Bass"
	case StemMelody:
		return "Melody"
	case StemInstrumental:
		return "Instrumental"
	default:
		return "Unknown"
	}
}

// Sources returns the separation output files the stem is built from.
// A single source is copied; multiple sources are mixed.
func (s StemType) Sources() []string {
	switch s {
	case StemAcapella:
		return []string{"vocals.mp3"}
	case StemDrums:
		return []string{"drums.mp3"}
	case StemBass:
		return []string{"bass.mp3"}
	case StemMelody:
		return []string{"other.mp3"}
	case StemInstrumental:
		return []string{"other.mp3", "drums.mp3", "bass.mp3"}
	default:
		return nil
	}
}

// ShowsKey reports whether the musical key belongs in this stem's
// folder name. Drums are unpitched, so their folders never carry a key.
func (s StemType) ShowsKey() bool {
	return s != StemDrums
}

var unsafePathChars = regexp.MustCompile(`[/\\:*?"<>|]+`)

// FolderName builds the export folder name for a track and stem type:
// "Artist - Title StemType [BPM Key]". The bracket section is omitted
// entirely when neither tempo nor key is known.
func FolderName(track models.Track, stem StemType) string {
	name := fmt.Sprintf("%s %s", track.DisplayName(), stem)

	var parts []string
	if track.Tempo > 0 {
		parts = append(parts, fmt.Sprintf("%d BPM", int(track.Tempo)))
	}
	key := strings.TrimSpace(track.Key)
	if key != "" && !strings.EqualFold(key, "Unknown") && stem.ShowsKey() {
		parts = append(parts, key)
	}
	if len(parts) > 0 {
		name = fmt.Sprintf("%s [%s]", name, strings.Join(parts, " "))
	}

	return sanitizeFolderName(name)
}

// sanitizeFolderName strips path separators and other characters that
// break folder creation across filesystems.
func sanitizeFolderName(name string) string {
	name = unsafePathChars.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(name), " ")
}
