package runregistry

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle state of a deployment run.
//
// NOTE: These values are persisted in run.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateRunning RunState = "running"
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
)

// StageResult is the persisted outcome of one pipeline stage.
type StageResult struct {
	Name     string        `json:"name"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration_ns"`
	Detail   string        `json:"detail,omitempty"`
}

// RunRecord is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	State     RunState  `json:"state"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Host      string        `json:"host,omitempty"`
	Stages    []StageResult `json:"stages,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NewRunID returns a fresh correlation ID for a deployment run.
func NewRunID() string {
	return uuid.NewString()
}
