package runregistry

import (
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{
		RunID:     "run-1",
		Mode:      "local",
		State:     RunStateSuccess,
		CreatedAt: now,
		StartedAt: &now,
		Stages: []StageResult{
			{Name: "preprocess", Outcome: "skipped", Detail: "processed dataset exists"},
			{Name: "train", Outcome: "success", Duration: 3 * time.Second},
		},
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.RunID != rec.RunID {
		t.Fatalf("run_id mismatch: got=%q want=%q", got.RunID, rec.RunID)
	}
	if got.State != RunStateSuccess {
		t.Fatalf("state mismatch: got=%q", got.State)
	}
	if len(got.Stages) != 2 || got.Stages[1].Name != "train" {
		t.Fatalf("stages not persisted: %+v", got.Stages)
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&RunRecord{RunID: "run-1", Mode: "local", State: RunStateSuccess, CreatedAt: t1, StartedAt: &t1}); err != nil {
		t.Fatalf("Write run-1: %v", err)
	}
	if err := s.Write(&RunRecord{RunID: "run-2", Mode: "remote", State: RunStateFailed, CreatedAt: t2, StartedAt: &t2}); err != nil {
		t.Fatalf("Write run-2: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected run count: %d", len(got))
	}
	if got[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].RunID)
	}
}

func TestStore_ZombieRunMarkedFailed(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{
		RunID:     "run-zombie",
		Mode:      "local",
		State:     RunStateRunning,
		PID:       999999999,
		CreatedAt: now,
		StartedAt: &now,
	}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("run-zombie")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateFailed {
		t.Fatalf("expected failed state for dead pid, got %q", got.State)
	}
	if got.EndedAt == nil {
		t.Fatalf("expected ended_at to be set")
	}
}

func TestStore_NewRunIDUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty run IDs, got %q and %q", a, b)
	}
}
