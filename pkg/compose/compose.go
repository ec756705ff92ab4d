// Package compose wraps `docker compose` for the container build/start step.
//
// Stopping previous instances is best-effort; build and start failures are
// fatal and accompanied by a dump of recent logs so the operator never has to
// re-run the command by hand to see what happened.
package compose

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
)

// Executor drives docker compose against one compose file.
type Executor struct {
	// File is the multi-container orchestration file.
	File string

	// ProjectDir is the directory commands run in; empty means cwd.
	ProjectDir string

	// LogTail bounds the log window dumped on failure.
	LogTail int

	Runner execx.Runner
	Logger *zap.Logger
}

// CheckFile verifies the compose file exists; its absence is a missing
// prerequisite, not a retryable condition.
func (e *Executor) CheckFile() error {
	if _, err := os.Stat(e.File); err != nil {
		return apperrors.WrapPrerequisite(err, fmt.Sprintf("compose file %s", e.File))
	}
	return nil
}

// Down stops any previously running instances. Failures (including "nothing
// is running") are logged and suppressed: at most one instance set serves
// traffic at a time, and a clean slate is all this step guarantees.
func (e *Executor) Down(ctx context.Context) {
	res, err := e.run(ctx, "down", "--remove-orphans")
	if err != nil {
		e.Logger.Debug("compose down (best-effort) failed",
			zap.Error(err),
			zap.String("output", execx.TailLines(res.Combined(), 10)))
		return
	}
	e.Logger.Info("Stopped previous containers")
}

// Build builds the image from the current source tree. Failure is fatal; the
// recent build output is dumped before the error propagates.
func (e *Executor) Build(ctx context.Context) error {
	res, err := e.run(ctx, "build")
	if err != nil {
		e.Logger.Error("Image build failed, recent build output:",
			zap.String("output", execx.TailLines(res.Combined(), e.LogTail)))
		return apperrors.WrapExternal(err, "docker build")
	}
	return nil
}

// Up starts the containers detached. Failure is fatal; recent run logs are
// dumped before the error propagates.
func (e *Executor) Up(ctx context.Context) error {
	res, err := e.run(ctx, "up", "-d")
	if err != nil {
		e.Logger.Error("Container start failed, recent output:",
			zap.String("output", execx.TailLines(res.Combined(), e.LogTail)))
		e.dumpLogs(ctx)
		return apperrors.WrapExternal(err, "docker compose up")
	}
	return nil
}

// PS returns container status output for diagnostics.
func (e *Executor) PS(ctx context.Context) (string, error) {
	res, err := e.run(ctx, "ps")
	if err != nil {
		return "", apperrors.WrapExternal(err, "docker compose ps")
	}
	return res.Stdout, nil
}

// Logs returns the last tail lines of container logs.
func (e *Executor) Logs(ctx context.Context, tail int) (string, error) {
	res, err := e.run(ctx, "logs", "--no-color", "--tail", strconv.Itoa(tail))
	if err != nil {
		return "", apperrors.WrapExternal(err, "docker compose logs")
	}
	return res.Combined(), nil
}

// DumpDiagnostics logs container status and recent logs. Used by the health
// stage when the service never becomes healthy.
func (e *Executor) DumpDiagnostics(ctx context.Context) {
	if ps, err := e.PS(ctx); err == nil {
		e.Logger.Error("Container status:", zap.String("ps", ps))
	}
	e.dumpLogs(ctx)
}

// Services returns the service names declared in the compose file, sorted.
func (e *Executor) Services() ([]string, error) {
	data, err := os.ReadFile(e.File)
	if err != nil {
		return nil, apperrors.WrapPrerequisite(err, fmt.Sprintf("compose file %s", e.File))
	}

	var doc struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", e.File, err)
	}

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Executor) dumpLogs(ctx context.Context) {
	if logs, err := e.Logs(ctx, e.LogTail); err == nil && logs != "" {
		e.Logger.Error("Recent container logs:", zap.String("logs", execx.TailLines(logs, e.LogTail)))
	}
}

func (e *Executor) run(ctx context.Context, args ...string) (execx.Result, error) {
	full := append([]string{"compose", "-f", e.File}, args...)
	return e.Runner.Run(ctx, e.ProjectDir, "docker", full...)
}
