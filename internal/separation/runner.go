package separation

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// tailLimit bounds how many output lines are retained for failure
// classification.
const tailLimit = 200

// Job describes a single separation tool invocation.
type Job struct {
	Model     string
	Device    string
	InputPath string
	Shifts    int
}

// ToolRunner runs the separation tool and reports its exit code along
// with the tail of its combined output.
type ToolRunner interface {
	Run(ctx context.Context, job Job) (exitCode int, tail string, err error)
}

// ExecRunner invokes demucs as a subprocess, streaming its output
// line-by-line to the logger so long separations stay observable.
type ExecRunner struct {
	logger *log.Logger
}

// NewExecRunner creates a runner that logs tool output through logger.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes demucs for the job. A non-zero exit is reported through
// the exit code, not err; err means the tool could not be started or
// its output could not be consumed.
func (r *ExecRunner) Run(ctx context.Context, job Job) (int, string, error) {
	cmd := exec.CommandContext(ctx, "demucs",
		"--mp3",
		"-n", job.Model,
		"--shifts", strconv.Itoa(job.Shifts),
		"-d", job.Device,
		job.InputPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, "", err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return -1, "", err
	}

	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		r.logger.Debug("demucs", "model", job.Model, "line", line)
		tail = append(tail, line)
		if len(tail) > tailLimit {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), strings.Join(tail, "\n"), nil
		}
		return -1, strings.Join(tail, "\n"), err
	}
	return 0, strings.Join(tail, "\n"), nil
}

// IsCUDAOutOfMemory reports whether the tool output indicates a GPU
// out-of-memory condition. Only these failures warrant a CPU retry;
// anything else would mask real separation bugs behind silent retries.
func IsCUDAOutOfMemory(tail string) bool {
	return strings.Contains(tail, "CUDA out of memory") || strings.Contains(tail, "CUDA error")
}
