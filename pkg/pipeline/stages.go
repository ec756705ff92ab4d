package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/artifacts"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
	"github.com/absenteeism-ml/absdeploy/pkg/health"
)

// Python entrypoints of the data-science package.
const (
	PreprocessModule = "absenteeism_at_work.preprocess_data"
	TrainModule      = "absenteeism_at_work.modeling.train"
)

// EnvPreparer is the slice of pyenv.Preparer the stages use.
type EnvPreparer interface {
	Ensure(ctx context.Context) error
	RunModule(ctx context.Context, module string, args ...string) (execx.Result, error)
}

// ComposeExecutor is the slice of compose.Executor the stages use.
type ComposeExecutor interface {
	CheckFile() error
	Down(ctx context.Context)
	Build(ctx context.Context) error
	Up(ctx context.Context) error
	DumpDiagnostics(ctx context.Context)
}

// LivenessPoller is the slice of health.Client the stages use.
type LivenessPoller interface {
	URL() string
	WaitLive(ctx context.Context, maxAttempts int, interval time.Duration) (health.Status, error)
	CheckReady(ctx context.Context) (health.Readiness, error)
}

// PrepareEnv makes the Python environment usable.
type PrepareEnv struct {
	Prep EnvPreparer
}

func (s *PrepareEnv) Name() string { return "prepare_env" }

func (s *PrepareEnv) Run(ctx context.Context) (Result, error) {
	if err := s.Prep.Ensure(ctx); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// Preprocess derives the processed dataset from the raw one. Skipped when the
// output already exists; fatal before any later stage when neither file is
// present.
type Preprocess struct {
	Layout artifacts.Layout
	Prep   EnvPreparer
	Logger *zap.Logger
}

func (s *Preprocess) Name() string { return "preprocess" }

func (s *Preprocess) Run(ctx context.Context) (Result, error) {
	need, err := s.Layout.NeedsPreprocess()
	if err != nil {
		return Result{}, err
	}
	if !need {
		return Result{Skipped: true, Detail: "processed dataset exists"}, nil
	}

	s.Logger.Info("Preprocessing raw dataset",
		zap.String("raw", s.Layout.RawData),
		zap.String("processed", s.Layout.ProcessedData))
	if res, err := s.Prep.RunModule(ctx, PreprocessModule); err != nil {
		s.Logger.Error("Preprocessing failed", zap.String("output", execx.TailLines(res.Combined(), 20)))
		return Result{}, apperrors.WrapExternal(err, "preprocessing")
	}
	return Result{}, nil
}

// Train fits and serializes the model. Skipped when the artifact is newer
// than the processed dataset. A training failure is fatal: serving a stale
// model silently is worse than failing loudly. Whatever happened, the model
// artifact must exist afterwards.
type Train struct {
	Layout artifacts.Layout
	Prep   EnvPreparer
	Logger *zap.Logger
}

func (s *Train) Name() string { return "train" }

func (s *Train) Run(ctx context.Context) (Result, error) {
	need, err := s.Layout.NeedsTraining()
	if err != nil {
		return Result{}, err
	}
	if !need {
		if err := s.Layout.AssertModel(); err != nil {
			return Result{}, err
		}
		return Result{Skipped: true, Detail: "model artifact up to date"}, nil
	}

	s.Logger.Info("Training model", zap.String("model", s.Layout.Model))
	if res, err := s.Prep.RunModule(ctx, TrainModule); err != nil {
		s.Logger.Error("Training failed", zap.String("output", execx.TailLines(res.Combined(), 20)))
		return Result{}, apperrors.WrapExternal(err, "model training")
	}
	if err := s.Layout.AssertModel(); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// BuildAndStart stops previous containers, builds the image, and starts the
// service. The stop is best-effort; build and start failures are fatal.
type BuildAndStart struct {
	Compose   ComposeExecutor
	SkipBuild bool
	Logger    *zap.Logger
}

func (s *BuildAndStart) Name() string { return "build_and_start" }

func (s *BuildAndStart) Run(ctx context.Context) (Result, error) {
	if err := s.Compose.CheckFile(); err != nil {
		return Result{}, err
	}

	s.Compose.Down(ctx)

	detail := ""
	if s.SkipBuild {
		s.Logger.Info("Skipping image build")
		detail = "image build skipped"
	} else {
		if err := s.Compose.Build(ctx); err != nil {
			return Result{}, err
		}
	}

	if err := s.Compose.Up(ctx); err != nil {
		return Result{}, err
	}
	return Result{Detail: detail}, nil
}

// HealthCheck polls liveness and then verifies readiness. On failure the
// container status and recent logs are dumped before the error propagates.
type HealthCheck struct {
	Poller      LivenessPoller
	Compose     ComposeExecutor
	MaxAttempts int
	Interval    time.Duration
	Logger      *zap.Logger
}

func (s *HealthCheck) Name() string { return "health_check" }

func (s *HealthCheck) Run(ctx context.Context) (Result, error) {
	s.Logger.Info("Waiting for service to become healthy",
		zap.String("url", s.Poller.URL()),
		zap.Int("max_attempts", s.MaxAttempts),
		zap.Duration("interval", s.Interval))

	status, err := s.Poller.WaitLive(ctx, s.MaxAttempts, s.Interval)
	if status != health.StatusHealthy {
		s.Compose.DumpDiagnostics(ctx)
		return Result{}, apperrors.WrapExternal(err, "service liveness")
	}

	readiness, err := s.Poller.CheckReady(ctx)
	if err != nil {
		s.Compose.DumpDiagnostics(ctx)
		return Result{}, apperrors.WrapExternal(err, "service readiness")
	}
	if !readiness.Ready() {
		s.Compose.DumpDiagnostics(ctx)
		return Result{}, apperrors.NewExternalServiceError(
			fmt.Sprintf("service live but not ready (status %q, model_loaded %v)",
				readiness.Status, readiness.ModelLoaded))
	}

	s.Logger.Info("Service is healthy and the model is loaded")
	return Result{}, nil
}
