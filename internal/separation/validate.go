// Package separation runs the external stem separation tool with model
// fallbacks, output validation, and cached-result reuse.
package separation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/stemx/internal/shared"
)

// RequiredStems are the files every valid separation output must contain.
var RequiredStems = []string{"vocals", "drums", "bass", "other"}

// Plausibility bounds for a single stem file.
const (
	DefaultMinStemBytes   int64   = 102400
	MaxStemBytes          int64   = 5 << 30
	DefaultMinStemSeconds float64 = 10
)

// ValidationResult reports whether a separation output directory is
// usable, with per-stem problems when it is not. The "_" key carries
// directory-level failures.
type ValidationResult struct {
	OK       bool              `json:"ok"`
	Problems map[string]string `json:"problems,omitempty"`
}

// Validator checks separation output directories. The basic check is
// existence only; the strict check additionally enforces size and
// decodable-duration floors.
type Validator struct {
	minBytes   int64
	minSeconds float64
	probe      func(ctx context.Context, path string) (float64, error)
}

// NewValidator creates a validator with the given strictness floors.
// Non-positive values fall back to the defaults.
func NewValidator(minBytes int64, minSeconds float64) *Validator {
	if minBytes <= 0 {
		minBytes = DefaultMinStemBytes
	}
	if minSeconds <= 0 {
		minSeconds = DefaultMinStemSeconds
	}
	return &Validator{
		minBytes:   minBytes,
		minSeconds: minSeconds,
		probe:      shared.ProbeDuration,
	}
}

// Validate checks that every required stem exists in dir.
func (v *Validator) Validate(_ context.Context, dir string) ValidationResult {
	problems := make(map[string]string)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		problems["_"] = "output directory missing"
		return ValidationResult{OK: false, Problems: problems}
	}

	for _, stem := range RequiredStems {
		name := stem + ".mp3"
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			problems[name] = "missing"
		}
	}

	if len(problems) > 0 {
		return ValidationResult{OK: false, Problems: problems}
	}
	return ValidationResult{OK: true}
}

// ValidateStrict checks existence plus minimum size and, where ffprobe
// is available, minimum decodable duration for every required stem.
func (v *Validator) ValidateStrict(ctx context.Context, dir string) ValidationResult {
	result := v.Validate(ctx, dir)
	if !result.OK {
		return result
	}

	problems := make(map[string]string)
	for _, stem := range RequiredStems {
		name := stem + ".mp3"
		path := filepath.Join(dir, name)

		info, err := os.Stat(path)
		if err != nil {
			problems[name] = "missing"
			continue
		}
		if info.Size() < v.minBytes {
			problems[name] = fmt.Sprintf("too small: %d bytes (min %d)", info.Size(), v.minBytes)
			continue
		}
		if info.Size() > MaxStemBytes {
			problems[name] = fmt.Sprintf("too large: %d bytes", info.Size())
			continue
		}

		duration, err := v.probe(ctx, path)
		if err != nil {
			// no ffprobe or unreadable metadata: size check has to do
			continue
		}
		if duration < v.minSeconds {
			problems[name] = fmt.Sprintf("too short: %.1fs (min %.0fs)", duration, v.minSeconds)
		}
	}

	if len(problems) > 0 {
		return ValidationResult{OK: false, Problems: problems}
	}
	return ValidationResult{OK: true}
}
