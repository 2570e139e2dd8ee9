package separation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/shared"
)

// DefaultModels is the quality-first model order: the fine-tuned model
// is attempted before the cheaper fallbacks. Order is significant.
var DefaultModels = []string{"htdemucs_ft", "htdemucs_6s", "htdemucs"}

// Result is the outcome of a separation attempt.
type Result struct {
	Model      string
	OutputDir  string
	Validation ValidationResult
	Cached     bool
}

// Dispatcher tries each configured model in order until one produces a
// validating output directory, reusing prior outputs when they validate.
type Dispatcher struct {
	models        []string
	separatedRoot string
	runner        ToolRunner
	validator     *Validator
	logger        *log.Logger

	// OnAttempt, when set, is called before each model attempt so the
	// caller can surface progress. attempt is 1-based.
	OnAttempt func(model string, attempt int)

	// Shifts is passed through to every tool invocation.
	Shifts int

	// Timeout bounds each tool invocation when positive. A run that
	// exceeds it is killed and treated like any other failed model.
	Timeout time.Duration
}

// NewDispatcher creates a dispatcher over the given model order.
func NewDispatcher(models []string, separatedRoot string, runner ToolRunner, validator *Validator, logger *log.Logger) *Dispatcher {
	if len(models) == 0 {
		models = DefaultModels
	}
	if separatedRoot == "" {
		separatedRoot = "separated"
	}
	return &Dispatcher{
		models:        models,
		separatedRoot: separatedRoot,
		runner:        runner,
		validator:     validator,
		logger:        logger,
	}
}

// Models returns the configured model order.
func (d *Dispatcher) Models() []string {
	return d.models
}

// OutputDir computes where the tool writes stems for a model and input.
// The tool names the folder after the input basename.
func (d *Dispatcher) OutputDir(model, inputPath string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(d.separatedRoot, model, base)
}

// FindCached scans every model's output directory for the given input
// paths and returns the first one that validates. This must run before
// any subprocess is spawned; reuse is always cheaper than re-separation.
func (d *Dispatcher) FindCached(ctx context.Context, inputPaths ...string) (Result, bool) {
	for _, model := range d.models {
		for _, input := range inputPaths {
			if input == "" {
				continue
			}
			dir := d.OutputDir(model, input)
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if v := d.validator.Validate(ctx, dir); v.OK {
				abs, err := filepath.Abs(dir)
				if err != nil {
					abs = dir
				}
				d.logger.Info("using cached stems", "model", model, "dir", abs)
				return Result{Model: model, OutputDir: abs, Validation: v, Cached: true}, true
			}
		}
	}
	return Result{}, false
}

// Separate runs the model fallback chain on inputPath.
//
// Per model: run on the requested device; when the run fails and the
// output indicates GPU out-of-memory, retry the same model once on CPU;
// otherwise move on. A model whose output exists but fails validation
// is logged per stem and skipped. When every model fails, the result
// carries Validation.OK false and the error is ErrSeparationFailed,
// terminal for this track but not for the process.
func (d *Dispatcher) Separate(ctx context.Context, inputPath, device string) (Result, error) {
	return d.SeparateWithProgress(ctx, inputPath, device, d.OnAttempt)
}

// SeparateWithProgress is Separate with a per-call attempt callback,
// for callers sharing one dispatcher across concurrent workers.
func (d *Dispatcher) SeparateWithProgress(ctx context.Context, inputPath, device string, onAttempt func(model string, attempt int)) (Result, error) {
	for idx, model := range d.models {
		if onAttempt != nil {
			onAttempt(model, idx+1)
		}

		outDir := d.OutputDir(model, inputPath)
		d.logger.Info("separating", "model", model, "device", device, "attempt", idx+1)

		code, tail, err := d.run(ctx, Job{Model: model, Device: device, InputPath: inputPath, Shifts: d.Shifts})
		if err != nil {
			d.logger.Error("could not start separation tool", "model", model, "error", err)
			continue
		}

		if code != 0 || !dirExists(outDir) {
			d.logger.Warn("model failed", "model", model, "exit_code", code)

			if strings.HasPrefix(device, "cuda") && IsCUDAOutOfMemory(tail) {
				d.logger.Warn("GPU out of memory, retrying on cpu", "model", model)
				code2, _, err2 := d.run(ctx, Job{Model: model, Device: "cpu", InputPath: inputPath, Shifts: d.Shifts})
				if err2 == nil && code2 == 0 && dirExists(outDir) {
					if v := d.validator.Validate(ctx, outDir); v.OK {
						return d.success(model, outDir, v)
					}
				}
			}
			continue
		}

		v := d.validator.Validate(ctx, outDir)
		if v.OK {
			return d.success(model, outDir, v)
		}
		d.logger.Warn("model produced weak stems, trying next", "model", model, "problems", fmt.Sprintf("%v", v.Problems))
	}

	return Result{
		Validation: ValidationResult{OK: false, Problems: map[string]string{"_": "all models failed"}},
	}, shared.ErrSeparationFailed
}

// run invokes the tool under the configured deadline. A hung process
// is killed when the deadline fires and surfaces as a failed run, so
// the fallback chain moves on instead of stalling its worker.
func (d *Dispatcher) run(ctx context.Context, job Job) (int, string, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	return d.runner.Run(ctx, job)
}

func (d *Dispatcher) success(model, outDir string, v ValidationResult) (Result, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		abs = outDir
	}
	d.logger.Info("separation complete", "model", model, "dir", abs)
	return Result{Model: model, OutputDir: abs, Validation: v}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
