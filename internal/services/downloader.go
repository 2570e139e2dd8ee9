// Audio acquisition [Downloader] implementation backed by yt-dlp
package services

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/shared"
)

// commandRunner abstracts subprocess execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs commands with os/exec, returning combined output.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// YTDLPDownloader downloads candidate audio with yt-dlp and re-checks
// the resulting file's duration against the catalog's official value.
type YTDLPDownloader struct {
	mp3Root string
	runner  commandRunner
	probe   func(ctx context.Context, path string) (float64, error)
	logger  *log.Logger
}

// NewYTDLPDownloader creates a downloader writing into mp3Root.
func NewYTDLPDownloader(mp3Root string, logger *log.Logger) *YTDLPDownloader {
	return &YTDLPDownloader{
		mp3Root: mp3Root,
		runner:  execRunner{},
		probe:   shared.ProbeDuration,
		logger:  logger,
	}
}

// Download fetches the candidate's best audio as MP3 into
// <mp3Root>/<uid>.mp3. When officialDuration is known, the downloaded
// file's duration must fall within DownloadTolerance of it; a mismatch
// removes the file and fails the acquisition.
func (d *YTDLPDownloader) Download(ctx context.Context, candidateID, uid string, officialDuration int) (string, error) {
	if err := os.MkdirAll(d.mp3Root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	outPath := filepath.Join(d.mp3Root, uid+".mp3")

	if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
		if err := d.checkDuration(ctx, outPath, officialDuration); err == nil {
			d.logger.Info("reusing previously downloaded audio", "path", outPath)
			return outPath, nil
		}
		os.Remove(outPath)
	}

	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192",
		"-o", filepath.Join(d.mp3Root, uid+".%(ext)s"),
		candidateID,
	}

	d.logger.Info("downloading audio", "candidate", candidateID, "uid", uid)
	output, err := d.runner.Run(ctx, "yt-dlp", args...)
	if err != nil {
		return "", fmt.Errorf("%w: yt-dlp failed: %v: %s", shared.ErrAcquisitionFailed, err, tailLines(output, 5))
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: yt-dlp produced no output file at %s", shared.ErrAcquisitionFailed, outPath)
	}

	if err := d.checkDuration(ctx, outPath, officialDuration); err != nil {
		os.Remove(outPath)
		return "", err
	}

	return outPath, nil
}

// checkDuration probes the file and compares against the official
// duration. Probe failures are advisory; only a confirmed mismatch fails.
func (d *YTDLPDownloader) checkDuration(ctx context.Context, path string, officialDuration int) error {
	if officialDuration <= 0 {
		return nil
	}

	got, err := d.probe(ctx, path)
	if err != nil {
		d.logger.Warn("could not probe downloaded duration", "path", path, "error", err)
		return nil
	}

	tol := DownloadTolerance(officialDuration)
	diff := math.Abs(got - float64(officialDuration))
	if diff > tol {
		return fmt.Errorf("%w: downloaded duration %.1fs differs from official %ds by %.1fs (tolerance %.1fs)",
			shared.ErrAcquisitionFailed, got, officialDuration, diff, tol)
	}
	return nil
}

// DownloadTolerance returns the permitted absolute duration difference
// in seconds for a downloaded file. Longer tracks get proportionally
// wider bands, capped so extended mixes are never accepted for radio
// edits.
func DownloadTolerance(officialDuration int) float64 {
	official := float64(officialDuration)
	base := math.Max(2, official*0.05)

	switch {
	case official > 240:
		return math.Min(math.Max(base, official*0.15), 40)
	case official > 180:
		return math.Min(math.Max(base, official*0.10), 30)
	default:
		return math.Min(base, 10)
	}
}

// tailLines returns the last n lines of s for error context.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
