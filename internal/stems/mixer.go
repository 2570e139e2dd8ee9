package stems

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Mixer combines stem files with ffmpeg. Each input is padded down 2dB
// before mixing to prevent clipping, then the mix is loudness-normalized.
type Mixer struct {
	runner func(ctx context.Context, name string, args ...string) error
	logger *log.Logger
}

// NewMixer creates an ffmpeg-backed mixer.
func NewMixer(logger *log.Logger) *Mixer {
	return &Mixer{
		runner: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		logger: logger,
	}
}

// Mix overlays the input files into outPath.
func (m *Mixer) Mix(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to mix")
	}

	args := []string{"-y"}
	for _, input := range inputs {
		args = append(args, "-i", input)
	}

	var graph strings.Builder
	labels := make([]string, len(inputs))
	for i := range inputs {
		fmt.Fprintf(&graph, "[%d:a]volume=-2dB[a%d];", i, i)
		labels[i] = fmt.Sprintf("[a%d]", i)
	}
	fmt.Fprintf(&graph, "%samix=inputs=%d:duration=longest,loudnorm=I=-14:TP=-2:LRA=11[out]",
		strings.Join(labels, ""), len(inputs))

	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[out]",
		"-ac", "2",
		"-ar", "44100",
		outPath,
	)

	m.logger.Debug("mixing stems", "inputs", len(inputs), "out", outPath)
	if err := m.runner(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg mix failed: %w", err)
	}
	return nil
}

// copyFile copies a stem file verbatim.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
