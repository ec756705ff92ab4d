// Package errors defines the error taxonomy used across the deploy pipeline.
//
// Three categories matter operationally:
//   - prerequisite errors: a required input (interpreter, dataset, key file,
//     Dockerfile) is missing. Always fatal, never retried.
//   - external service errors: a collaborator (container runtime, cloud API,
//     remote host) failed or is unreachable. Fatal after bounded retry.
//   - best-effort failures are suppressed at call sites and never reach here.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// PrerequisiteError indicates a missing precondition that no retry can fix.
type PrerequisiteError struct {
	What string
	Err  error
}

func (e *PrerequisiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing prerequisite: %s: %v", e.What, e.Err)
	}
	return "missing prerequisite: " + e.What
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// NewPrerequisiteError reports a missing prerequisite.
func NewPrerequisiteError(what string) *PrerequisiteError {
	return &PrerequisiteError{What: what}
}

// WrapPrerequisite attaches an underlying cause to a prerequisite failure.
func WrapPrerequisite(err error, what string) *PrerequisiteError {
	return &PrerequisiteError{What: what, Err: err}
}

// IsPrerequisite reports whether err is (or wraps) a PrerequisiteError.
func IsPrerequisite(err error) bool {
	var pe *PrerequisiteError
	return errors.As(err, &pe)
}

// ExternalServiceError indicates a failed interaction with an external
// collaborator (docker, terraform, EC2 API, remote host, model API).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return e.Service + " unavailable"
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError reports an external collaborator failure.
func NewExternalServiceError(service string) *ExternalServiceError {
	return &ExternalServiceError{Service: service}
}

// WrapExternal attaches the underlying cause to an external service failure.
func WrapExternal(err error, service string) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

// IsExternalService reports whether err is (or wraps) an ExternalServiceError.
func IsExternalService(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

// WrapInternal wraps unexpected errors with a message, preserving context
// cancellation so callers can distinguish operator interrupts.
func WrapInternal(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if ctx != nil && ctx.Err() != nil {
		return fmt.Errorf("%s: %w", msg, ctx.Err())
	}
	return fmt.Errorf("%s: %w", msg, err)
}
