package stems

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		key     string
		want    Channel
		wantErr bool
	}{
		{"main", ChannelMain, false},
		{"acapellas", ChannelAcapellas, false},
		{"drums", ChannelDrums, false},
		{"samples", ChannelSamples, false},
		{"video", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseChannel(tt.key)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrUnknownChannel) {
					t.Errorf("expected ErrUnknownChannel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseChannel(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	t.Run("ParseChannels fails on first unknown", func(t *testing.T) {
		if _, err := ParseChannels([]string{"main", "nope"}); !errors.Is(err, shared.ErrUnknownChannel) {
			t.Errorf("expected ErrUnknownChannel, got %v", err)
		}
	})
}

func TestStemSources(t *testing.T) {
	tests := []struct {
		stem    StemType
		sources []string
	}{
		{StemAcapella, []string{"vocals.mp3"}},
		{StemDrums, []string{"drums.mp3"}},
		{StemBass, []string{"bass.mp3"}},
		{StemMelody, []string{"other.mp3"}},
		{StemInstrumental, []string{"other.mp3", "drums.mp3", "bass.mp3"}},
	}

	for _, tt := range tests {
		t.Run(tt.stem.String(), func(t *testing.T) {
			got := tt.stem.Sources()
			if len(got) != len(tt.sources) {
				t.Fatalf("expected %v, got %v", tt.sources, got)
			}
			for i := range got {
				if got[i] != tt.sources[i] {
					t.Errorf("source %d: expected %s, got %s", i, tt.sources[i], got[i])
				}
			}
		})
	}
}

func TestFolderName(t *testing.T) {
	track := models.Track{Title: "Test Song", Artist: "Test Artist", Tempo: 120, Key: "8A"}

	tests := []struct {
		name  string
		track models.Track
		stem  StemType
		want  string
	}{
		{"full metadata", track, StemAcapella, "Test Artist - Test Song Acapella [120 BPM 8A]"},
		{"drums never show key", track, StemDrums, "Test Artist - Test Song Drums [120 BPM]"},
		{
			"no metadata omits brackets",
			models.Track{Title: "Test Song", Artist: "Test Artist"},
			StemInstrumental,
			"Test Artist - Test Song Instrumental",
		},
		{
			"unknown key is omitted",
			models.Track{Title: "Test Song", Artist: "Test Artist", Tempo: 98, Key: "Unknown"},
			StemMelody,
			"Test Artist - Test Song Melody [98 BPM]",
		},
		{
			"key only",
			models.Track{Title: "Test Song", Artist: "Test Artist", Key: "3B"},
			StemBass,
			"Test Artist - Test Song Bass [3B]",
		},
		{
			"path-hostile characters stripped",
			models.Track{Title: "What / Why?", Artist: "A:B"},
			StemAcapella,
			"A B - What Why Acapella",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FolderName(tt.track, tt.stem); got != tt.want {
				t.Errorf("FolderName = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeStemDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"vocals.mp3", "drums.mp3", "bass.mp3", "other.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio:"+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestExportProcessor(t *testing.T) {
	track := models.Track{ID: "t1", Title: "Test Song", Artist: "Test Artist", Tempo: 120, Key: "8A"}

	newProcessor := func(t *testing.T) (*ExportProcessor, string, *[]string) {
		t.Helper()
		outRoot := t.TempDir()
		mixer := NewMixer(shared.NewLogger(io.Discard))
		var mixed []string
		mixer.runner = func(_ context.Context, _ string, args ...string) error {
			out := args[len(args)-1]
			mixed = append(mixed, out)
			return os.WriteFile(out, []byte("mixed audio"), 0o644)
		}
		return NewExportProcessor(outRoot, mixer, shared.NewLogger(io.Discard)), outRoot, &mixed
	}

	t.Run("direct stem is copied", func(t *testing.T) {
		p, outRoot, mixed := newProcessor(t)
		stemDir := writeStemDir(t)

		if err := p.Process(context.Background(), track, ChannelAcapellas, stemDir); err != nil {
			t.Fatal(err)
		}

		dest := filepath.Join(outRoot, "Acapellas", "Test Artist - Test Song Acapella [120 BPM 8A]", "Acapella.mp3")
		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("expected exported stem at %s: %v", dest, err)
		}
		if string(data) != "audio:vocals.mp3" {
			t.Errorf("unexpected content %q", data)
		}
		if len(*mixed) != 0 {
			t.Error("direct stem should not be mixed")
		}
	})

	t.Run("composite stem is mixed", func(t *testing.T) {
		p, outRoot, mixed := newProcessor(t)
		stemDir := writeStemDir(t)

		if err := p.Process(context.Background(), track, ChannelMain, stemDir); err != nil {
			t.Fatal(err)
		}

		dest := filepath.Join(outRoot, "Main", "Test Artist - Test Song Instrumental [120 BPM 8A]", "Instrumental.mp3")
		if _, err := os.Stat(dest); err != nil {
			t.Fatalf("expected mixed instrumental at %s: %v", dest, err)
		}
		if len(*mixed) != 1 {
			t.Errorf("expected one mix invocation, got %d", len(*mixed))
		}
	})

	t.Run("samples channel exports all stems", func(t *testing.T) {
		p, outRoot, _ := newProcessor(t)
		stemDir := writeStemDir(t)

		if err := p.Process(context.Background(), track, ChannelSamples, stemDir); err != nil {
			t.Fatal(err)
		}

		entries, err := os.ReadDir(filepath.Join(outRoot, "Samples"))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 5 {
			t.Errorf("expected 5 stem folders, got %d", len(entries))
		}
	})

	t.Run("missing source fails the channel", func(t *testing.T) {
		p, _, _ := newProcessor(t)
		stemDir := t.TempDir()
		os.WriteFile(filepath.Join(stemDir, "vocals.mp3"), []byte("audio"), 0o644)

		err := p.Process(context.Background(), track, ChannelDrums, stemDir)
		if !errors.Is(err, shared.ErrInvalidStemDir) {
			t.Errorf("expected ErrInvalidStemDir, got %v", err)
		}
	})

	t.Run("missing stem dir fails", func(t *testing.T) {
		p, _, _ := newProcessor(t)
		err := p.Process(context.Background(), track, ChannelMain, filepath.Join(t.TempDir(), "gone"))
		if !errors.Is(err, shared.ErrInvalidStemDir) {
			t.Errorf("expected ErrInvalidStemDir, got %v", err)
		}
	})

	t.Run("OnStem callback fires per stem", func(t *testing.T) {
		p, _, _ := newProcessor(t)
		stemDir := writeStemDir(t)

		var seen []string
		p.OnStem = func(_ models.Track, _ Channel, stem ProcessedStem) {
			seen = append(seen, stem.Stem.String())
		}

		if err := p.Process(context.Background(), track, ChannelSamples, stemDir); err != nil {
			t.Fatal(err)
		}
		if strings.Join(seen, ",") != "Acapella,Drums,Bass,Melody,Instrumental" {
			t.Errorf("unexpected stem order: %v", seen)
		}
	})
}
