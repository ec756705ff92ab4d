// Package execx isolates subprocess execution behind a small interface so the
// pipeline packages (pyenv, compose, terraform) can be tested with fakes.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Result captures a finished command's output.
type Result struct {
	Stdout string
	Stderr string
}

// Combined returns stdout and stderr joined for diagnostics.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes external commands.
type Runner interface {
	// Run executes name with args in dir (empty dir means inherit cwd) and
	// returns captured output. A non-zero exit is returned as an error with
	// the captured Result still populated.
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
}

// LookPather resolves binaries; split from Runner so prerequisite checks can
// be faked independently.
type LookPather interface {
	LookPath(name string) (string, error)
}

// OSRunner runs commands with os/exec, inheriting the process environment
// plus any extra variables.
type OSRunner struct {
	ExtraEnv []string
}

// Run implements Runner.
func (r *OSRunner) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.ExtraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return res, nil
}

// LookPath implements LookPather.
func (r *OSRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// TailLines returns the last n lines of s, used when dumping recent build or
// container logs on failure.
func TailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

var _ Runner = (*OSRunner)(nil)
var _ LookPather = (*OSRunner)(nil)
