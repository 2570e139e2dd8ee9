package stems

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// ChannelProcessor assembles one channel's deliverables from a
// validated separation output directory.
type ChannelProcessor interface {
	Process(ctx context.Context, track models.Track, channel Channel, stemDir string) error
}

// ProcessedStem reports one exported stem file.
type ProcessedStem struct {
	Stem StemType
	Path string
}

// ExportProcessor assembles channel folders on the local filesystem:
// direct stems are copied, composite stems are mixed.
type ExportProcessor struct {
	outRoot string
	mixer   *Mixer
	logger  *log.Logger

	// OnStem, when set, is called after each stem lands so the caller
	// can checkpoint it.
	OnStem func(track models.Track, channel Channel, stem ProcessedStem)
}

// NewExportProcessor creates a processor writing under outRoot.
func NewExportProcessor(outRoot string, mixer *Mixer, logger *log.Logger) *ExportProcessor {
	return &ExportProcessor{outRoot: outRoot, mixer: mixer, logger: logger}
}

// Process exports every stem the channel carries. The stem directory
// must contain all source files a stem needs; a stem with missing
// sources fails the whole channel so partial folders never ship.
func (p *ExportProcessor) Process(ctx context.Context, track models.Track, channel Channel, stemDir string) error {
	if info, err := os.Stat(stemDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", shared.ErrInvalidStemDir, stemDir)
	}

	for _, stem := range channel.Stems() {
		sources := make([]string, 0, len(stem.Sources()))
		for _, name := range stem.Sources() {
			src := filepath.Join(stemDir, name)
			if _, err := os.Stat(src); err != nil {
				return fmt.Errorf("%w: missing %s for %s", shared.ErrInvalidStemDir, name, stem)
			}
			sources = append(sources, src)
		}

		destDir := filepath.Join(p.outRoot, channel.Label(), FolderName(track, stem))
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", destDir, err)
		}
		destPath := filepath.Join(destDir, stem.String()+".mp3")

		var err error
		if len(sources) == 1 {
			err = copyFile(sources[0], destPath)
		} else {
			err = p.mixer.Mix(ctx, sources, destPath)
		}
		if err != nil {
			return fmt.Errorf("failed to assemble %s for %s: %w", stem, channel.Key(), err)
		}

		p.logger.Info("stem exported", "channel", channel.Key(), "stem", stem.String(), "path", destPath)
		if p.OnStem != nil {
			p.OnStem(track, channel, ProcessedStem{Stem: stem, Path: destPath})
		}
	}

	return nil
}
