// Package pipeline sequences the local deployment: environment preparation,
// preprocessing, training, container build/start, and the final health
// verdict.
//
// Execution is strictly sequential with early exit on the first error.
// Idempotency lives in the stages themselves: each one decides whether its
// work is already done and reports a skip instead of redoing it.
package pipeline

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/report"
	"github.com/absenteeism-ml/absdeploy/pkg/runregistry"
)

// Result is a stage's non-error outcome.
type Result struct {
	// Skipped is true when the stage found its work already done.
	Skipped bool

	// Detail explains a skip or adds color to a success.
	Detail string
}

// Stage is one step of the deployment.
type Stage interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// Runner executes stages top to bottom and records the run.
type Runner struct {
	Stages   []Stage
	Logger   *zap.Logger
	Report   report.Writer
	Registry *runregistry.Store

	// Mode is recorded with the run ("local" or "remote").
	Mode string

	// RunID correlates the run record with report output. Generated when
	// empty.
	RunID string
}

// Run executes all stages. The first error stops the pipeline; the run
// record and JSONL stream always get a terminal summary either way.
func (r *Runner) Run(ctx context.Context) error {
	runID := r.RunID
	if runID == "" {
		runID = runregistry.NewRunID()
	}
	now := time.Now().UTC()
	record := &runregistry.RunRecord{
		RunID:     runID,
		Mode:      r.Mode,
		State:     runregistry.RunStateRunning,
		PID:       os.Getpid(),
		CreatedAt: now,
		StartedAt: &now,
	}
	r.persist(record)

	r.Logger.Info("Starting deployment pipeline",
		zap.String("run_id", runID),
		zap.String("mode", r.Mode),
		zap.Int("stages", len(r.Stages)))

	started := time.Now()
	var ran, skipped int
	for _, stage := range r.Stages {
		outcome, detail, duration, err := r.runStage(ctx, stage)
		record.Stages = append(record.Stages, runregistry.StageResult{
			Name:     stage.Name(),
			Outcome:  outcome,
			Duration: duration,
			Detail:   detail,
		})
		r.persist(record)

		switch outcome {
		case report.OutcomeSkipped:
			skipped++
		default:
			ran++
		}

		if err != nil {
			r.finalize(ctx, record, started, ran, skipped, err)
			return err
		}
	}

	r.finalize(ctx, record, started, ran, skipped, nil)
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage) (outcome, detail string, duration time.Duration, err error) {
	r.Logger.Info("Stage starting", zap.String("stage", stage.Name()))
	start := time.Now()

	res, err := stage.Run(ctx)
	duration = time.Since(start)

	switch {
	case err != nil:
		outcome = report.OutcomeFailed
		detail = err.Error()
		r.Logger.Error("Stage failed",
			zap.String("stage", stage.Name()),
			zap.Duration("duration", duration),
			zap.Error(err))
		_ = r.Report.WriteError(ctx, &report.ErrorRecord{
			Code:    errorCode(err),
			Message: err.Error(),
			Stage:   stage.Name(),
		})
	case res.Skipped:
		outcome = report.OutcomeSkipped
		detail = res.Detail
		r.Logger.Info("Stage skipped",
			zap.String("stage", stage.Name()),
			zap.String("reason", res.Detail))
	default:
		outcome = report.OutcomeSuccess
		detail = res.Detail
		r.Logger.Info("Stage complete",
			zap.String("stage", stage.Name()),
			zap.Duration("duration", duration))
	}

	_ = r.Report.WriteStage(ctx, &report.StageRecord{
		Stage:         stage.Name(),
		Outcome:       outcome,
		Duration:      duration,
		DurationHuman: duration.Round(time.Millisecond).String(),
		Detail:        detail,
	})
	return outcome, detail, duration, err
}

func (r *Runner) finalize(ctx context.Context, record *runregistry.RunRecord, started time.Time, ran, skipped int, err error) {
	total := time.Since(started)
	ended := time.Now().UTC()
	record.EndedAt = &ended

	result := "success"
	if err != nil {
		result = "failed"
		record.State = runregistry.RunStateFailed
		record.Error = err.Error()
	} else {
		record.State = runregistry.RunStateSuccess
	}
	r.persist(record)

	_ = r.Report.WriteSummary(ctx, &report.SummaryRecord{
		Result:        result,
		StagesRun:     ran,
		StagesSkipped: skipped,
		Duration:      total,
		DurationHuman: total.Round(time.Millisecond).String(),
	})

	if err != nil {
		r.Logger.Error("Deployment failed",
			zap.String("run_id", record.RunID),
			zap.Duration("duration", total),
			zap.Error(err))
		return
	}
	r.Logger.Info("Deployment complete",
		zap.String("run_id", record.RunID),
		zap.Duration("duration", total),
		zap.Int("stages_run", ran),
		zap.Int("stages_skipped", skipped))
}

func (r *Runner) persist(record *runregistry.RunRecord) {
	if r.Registry == nil {
		return
	}
	if err := r.Registry.Write(record); err != nil {
		r.Logger.Warn("Failed to persist run record", zap.Error(err))
	}
}

func errorCode(err error) string {
	switch {
	case apperrors.IsPrerequisite(err):
		return report.ErrCodePrerequisite
	case apperrors.IsExternalService(err):
		return report.ErrCodeExternalService
	default:
		return report.ErrCodeInternal
	}
}
