// Package terraform wraps the terraform CLI for idempotent provisioning.
//
// State lives with terraform itself; this wrapper only queries it and applies
// templates. "Already exists" conflicts during apply are idempotency
// tolerance, not failure.
package terraform

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
)

// Executor runs terraform in one template directory.
type Executor struct {
	// Dir holds the HCL templates and the local state backend.
	Dir string

	Runner execx.Runner
	Logger *zap.Logger
}

// CheckDir verifies the template directory exists.
func (e *Executor) CheckDir() error {
	if info, err := os.Stat(e.Dir); err != nil || !info.IsDir() {
		return apperrors.NewPrerequisiteError("terraform directory " + e.Dir)
	}
	return nil
}

// HasInstances queries terraform state for managed resources. An empty state
// (or an uninitialized one) means provisioning is required.
func (e *Executor) HasInstances(ctx context.Context) bool {
	res, err := e.run(ctx, "state", "list")
	if err != nil {
		e.Logger.Debug("terraform state query failed, assuming no instances", zap.Error(err))
		return false
	}
	return strings.TrimSpace(res.Stdout) != ""
}

// Init initializes providers and the backend. Safe to repeat.
func (e *Executor) Init(ctx context.Context) error {
	if res, err := e.run(ctx, "init", "-input=false"); err != nil {
		e.Logger.Error("terraform init failed", zap.String("output", execx.TailLines(res.Combined(), 30)))
		return apperrors.WrapExternal(err, "terraform init")
	}
	return nil
}

// Apply applies the templates. On failure the apply is retried once, and
// "already exists" conflicts count as success: a second deploy racing a
// half-applied first one must converge, not fail.
func (e *Executor) Apply(ctx context.Context) error {
	res, err := e.run(ctx, "apply", "-input=false", "-auto-approve")
	if err == nil {
		return nil
	}
	if alreadyExists(res.Combined()) {
		e.Logger.Info("Resources already exist, treating apply as success")
		return nil
	}

	e.Logger.Warn("terraform apply failed, retrying once", zap.Error(err))
	res, err = e.run(ctx, "apply", "-input=false", "-auto-approve")
	if err == nil {
		return nil
	}
	if alreadyExists(res.Combined()) {
		e.Logger.Info("Resources already exist, treating apply as success")
		return nil
	}

	e.Logger.Error("terraform apply failed", zap.String("output", execx.TailLines(res.Combined(), 30)))
	return apperrors.WrapExternal(err, "terraform apply")
}

// Destroy tears down all managed resources. Only invoked by the explicit
// teardown command, never by the deploy pipeline.
func (e *Executor) Destroy(ctx context.Context) error {
	if res, err := e.run(ctx, "destroy", "-input=false", "-auto-approve"); err != nil {
		e.Logger.Error("terraform destroy failed", zap.String("output", execx.TailLines(res.Combined(), 30)))
		return apperrors.WrapExternal(err, "terraform destroy")
	}
	return nil
}

// Output reads a single raw output value.
func (e *Executor) Output(ctx context.Context, name string) (string, error) {
	res, err := e.run(ctx, "output", "-raw", name)
	if err != nil {
		return "", apperrors.WrapExternal(err, "terraform output "+name)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func alreadyExists(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "already exists") ||
		strings.Contains(lower, "duplicate") && strings.Contains(lower, "exists")
}

func (e *Executor) run(ctx context.Context, args ...string) (execx.Result, error) {
	return e.Runner.Run(ctx, e.Dir, "terraform", args...)
}
