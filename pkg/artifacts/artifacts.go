// Package artifacts models the on-disk pipeline artifacts: the raw dataset,
// the processed dataset derived from it, and the trained model.
//
// The only staleness signal is file modification time. The processed dataset
// is regenerated solely on absence; raw data changing underneath an existing
// processed file is a known gap, surfaced by Stale() in doctor output rather
// than silently repaired.
package artifacts

import (
	"fmt"
	"os"
	"time"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

// Layout fixes the convention-based artifact locations.
type Layout struct {
	// RawData is the immutable input dataset. Its existence is a
	// precondition for preprocessing.
	RawData string

	// ProcessedData is derived from RawData by the preprocessing step.
	ProcessedData string

	// Model is the serialized model artifact read by the serving container
	// at startup.
	Model string
}

// NeedsPreprocess reports whether the preprocessing step must run.
//
// The step is skipped whenever the processed output already exists. When both
// the processed and raw files are absent, the pipeline cannot make progress
// and a prerequisite error is returned before any training or container step.
func (l Layout) NeedsPreprocess() (bool, error) {
	if exists(l.ProcessedData) {
		return false, nil
	}
	if !exists(l.RawData) {
		return false, apperrors.NewPrerequisiteError(fmt.Sprintf("raw dataset %s", l.RawData))
	}
	return true, nil
}

// NeedsTraining reports whether the model must be (re)trained: the artifact
// is absent, or the processed dataset is strictly newer than it.
func (l Layout) NeedsTraining() (bool, error) {
	model, err := os.Stat(l.Model)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat model %s: %w", l.Model, err)
	}

	processed, err := os.Stat(l.ProcessedData)
	if err != nil {
		if os.IsNotExist(err) {
			return false, apperrors.NewPrerequisiteError(fmt.Sprintf("processed dataset %s", l.ProcessedData))
		}
		return false, fmt.Errorf("stat processed dataset %s: %w", l.ProcessedData, err)
	}

	return processed.ModTime().After(model.ModTime()), nil
}

// AssertModel verifies the model artifact exists. Called after the training
// step; absence at that point is always fatal, regardless of how training
// failures are otherwise handled.
func (l Layout) AssertModel() error {
	if !exists(l.Model) {
		return apperrors.NewPrerequisiteError(fmt.Sprintf("model artifact %s after training", l.Model))
	}
	return nil
}

// Stale reports whether the raw dataset is newer than the processed one.
// This condition does not trigger re-preprocessing; it is reported by
// doctor so an operator can delete the processed file deliberately.
func (l Layout) Stale() bool {
	raw, err := os.Stat(l.RawData)
	if err != nil {
		return false
	}
	processed, err := os.Stat(l.ProcessedData)
	if err != nil {
		return false
	}
	return raw.ModTime().After(processed.ModTime())
}

// ModelAge returns how long ago the model artifact was written, or zero when
// it does not exist.
func (l Layout) ModelAge(now time.Time) time.Duration {
	info, err := os.Stat(l.Model)
	if err != nil {
		return 0
	}
	return now.Sub(info.ModTime())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
