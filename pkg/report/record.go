// Package report provides JSONL output for deployment runs.
//
// Output is structured as typed record envelopes containing stage outcomes,
// errors, and a final run summary. Each line is a self-contained JSON object
// that can be parsed independently, which keeps machine consumption of
// deploy logs trivial.
package report

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: absdeploy.<type>.v<version>
const (
	// TypeStage identifies per-stage outcome records.
	TypeStage = "absdeploy.stage.v1"

	// TypeError identifies error records.
	TypeError = "absdeploy.error.v1"

	// TypeSummary identifies final run summary records.
	TypeSummary = "absdeploy.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line contains a Record with a type-specific payload in the Data
// field. The type field determines how to interpret the payload.
type Record struct {
	// Type identifies the record type (e.g., "absdeploy.stage.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this deployment run.
	RunID string `json:"run_id"`

	// Mode is the deployment mode ("local" or "remote").
	Mode string `json:"mode"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// StageRecord is the data payload for stage outcomes.
type StageRecord struct {
	// Stage names the pipeline stage (e.g., "preprocess", "train").
	Stage string `json:"stage"`

	// Outcome is one of "success", "skipped", "failed".
	Outcome string `json:"outcome"`

	// Duration is how long the stage ran.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Detail carries a short explanation for skips and failures.
	Detail string `json:"detail,omitempty"`
}

// Stage outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Stage names the stage that produced the error, if applicable.
	Stage string `json:"stage,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodePrerequisite indicates a missing prerequisite.
	ErrCodePrerequisite = "PREREQUISITE"

	// ErrCodeExternalService indicates a failed collaborator.
	ErrCodeExternalService = "EXTERNAL_SERVICE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// Result is "success" or "failed".
	Result string `json:"result"`

	// StagesRun is the number of stages that executed.
	StagesRun int `json:"stages_run"`

	// StagesSkipped is the number of stages skipped as already satisfied.
	StagesSkipped int `json:"stages_skipped"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "report: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
