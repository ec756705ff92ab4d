// Package pyenv prepares the isolated Python runtime used by the
// preprocessing and training steps.
//
// Preparation is idempotent: an existing virtualenv directory is reused, and
// dependency installation converges on the declared requirements.
package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/execx"
)

// FallbackPackages is installed when no requirements file is present. It is
// the minimal set the preprocessing, training, and serving code needs.
var FallbackPackages = []string{"pandas", "scikit-learn", "joblib", "fastapi", "uvicorn"}

// Preparer ensures a working interpreter and dependency set.
type Preparer struct {
	// Python is the base interpreter used to create the virtualenv.
	Python string

	// VenvDir is the persistent isolated environment directory.
	VenvDir string

	// Requirements is the declared dependency file. When absent,
	// Fallback is installed instead.
	Requirements string

	// Fallback is the package list used when Requirements is missing.
	// Empty fallback plus missing requirements is fatal.
	Fallback []string

	Runner execx.Runner
	Paths  execx.LookPather
	Logger *zap.Logger
}

// PythonPath is the virtualenv interpreter.
func (p *Preparer) PythonPath() string {
	return filepath.Join(p.VenvDir, "bin", "python")
}

// PipPath is the virtualenv pip.
func (p *Preparer) PipPath() string {
	return filepath.Join(p.VenvDir, "bin", "pip")
}

// Ensure makes the environment usable: interpreter present, virtualenv
// created or reused, dependencies installed.
func (p *Preparer) Ensure(ctx context.Context) error {
	if _, err := p.Paths.LookPath(p.Python); err != nil {
		return apperrors.WrapPrerequisite(err, fmt.Sprintf("python interpreter %q", p.Python))
	}

	if _, err := os.Stat(p.PythonPath()); err != nil {
		p.Logger.Info("Creating virtualenv", zap.String("dir", p.VenvDir))
		if res, err := p.Runner.Run(ctx, "", p.Python, "-m", "venv", p.VenvDir); err != nil {
			p.Logger.Error("virtualenv creation failed", zap.String("output", res.Combined()))
			return apperrors.WrapExternal(err, "virtualenv creation")
		}
	} else {
		p.Logger.Info("Reusing virtualenv", zap.String("dir", p.VenvDir))
	}

	return p.installDependencies(ctx)
}

func (p *Preparer) installDependencies(ctx context.Context) error {
	if _, err := os.Stat(p.Requirements); err == nil {
		p.Logger.Info("Installing dependencies", zap.String("requirements", p.Requirements))
		if res, err := p.Runner.Run(ctx, "", p.PipPath(), "install", "-q", "-r", p.Requirements); err != nil {
			p.Logger.Error("pip install failed", zap.String("output", execx.TailLines(res.Combined(), 20)))
			return apperrors.WrapExternal(err, "dependency installation")
		}
		return nil
	}

	if len(p.Fallback) == 0 {
		return apperrors.NewPrerequisiteError(fmt.Sprintf("requirements file %s (no fallback package list)", p.Requirements))
	}

	p.Logger.Warn("Requirements file missing, installing fallback package list",
		zap.String("requirements", p.Requirements),
		zap.Strings("packages", p.Fallback))
	args := append([]string{"install", "-q"}, p.Fallback...)
	if res, err := p.Runner.Run(ctx, "", p.PipPath(), args...); err != nil {
		p.Logger.Error("pip install failed", zap.String("output", execx.TailLines(res.Combined(), 20)))
		return apperrors.WrapExternal(err, "fallback dependency installation")
	}
	return nil
}

// RunModule executes `python -m module args...` inside the virtualenv.
// Used by the preprocess and train stages to invoke the data-science package.
func (p *Preparer) RunModule(ctx context.Context, module string, args ...string) (execx.Result, error) {
	full := append([]string{"-m", module}, args...)
	return p.Runner.Run(ctx, "", p.PythonPath(), full...)
}
