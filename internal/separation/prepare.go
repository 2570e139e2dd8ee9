package separation

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// minPreparedBytes is the size below which a prepared file is treated
// as an encoding failure and the original input is used instead.
const minPreparedBytes int64 = 150000

// Preparer pre-processes downloaded audio before separation: forcing
// 44.1kHz stereo and normalizing loudness reduces extraction failures
// on quiet or oddly encoded sources.
type Preparer struct {
	mp3Root string
	runner  func(ctx context.Context, name string, args ...string) error
	logger  *log.Logger
}

// NewPreparer creates a preparer writing prepared copies into mp3Root.
func NewPreparer(mp3Root string, logger *log.Logger) *Preparer {
	return &Preparer{
		mp3Root: mp3Root,
		runner: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		logger: logger,
	}
}

// PreparedPath returns where the prepared copy for a uid lives.
func (p *Preparer) PreparedPath(uid string) string {
	return filepath.Join(p.mp3Root, uid+"__prep.mp3")
}

// Prepare writes a normalized copy of srcPath and returns its path.
// On any failure the original path is returned with ok=false; the
// pipeline separates the original rather than aborting the track.
func (p *Preparer) Prepare(ctx context.Context, srcPath, uid string) (string, bool) {
	if err := os.MkdirAll(p.mp3Root, 0o755); err != nil {
		p.logger.Warn("could not create prep directory", "error", err)
		return srcPath, false
	}

	prepPath := p.PreparedPath(uid)
	err := p.runner(ctx, "ffmpeg",
		"-y",
		"-i", srcPath,
		"-ac", "2",
		"-ar", "44100",
		"-af", "loudnorm=I=-14:TP=-2:LRA=11",
		prepPath,
	)
	if err != nil {
		p.logger.Warn("audio preparation failed, using original", "src", srcPath, "error", err)
		return srcPath, false
	}

	info, statErr := os.Stat(prepPath)
	if statErr != nil || info.Size() <= minPreparedBytes {
		p.logger.Warn("prepared file too small, using original", "src", srcPath)
		return srcPath, false
	}

	p.logger.Info("using prepared audio", "path", prepPath)
	return prepPath, true
}
