package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStageEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "local")

	err := w.WriteStage(context.Background(), &StageRecord{
		Stage:         "preprocess",
		Outcome:       OutcomeSuccess,
		Duration:      1500 * time.Millisecond,
		DurationHuman: "1.5s",
	})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeStage, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "local", record.Mode)
	assert.False(t, record.TS.IsZero())

	var stage StageRecord
	require.NoError(t, json.Unmarshal(record.Data, &stage))
	assert.Equal(t, "preprocess", stage.Stage)
	assert.Equal(t, OutcomeSuccess, stage.Outcome)
}

func TestWriteErrorAndSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "remote")

	require.NoError(t, w.WriteError(context.Background(), &ErrorRecord{
		Code:    ErrCodePrerequisite,
		Message: "missing prerequisite: raw dataset",
		Stage:   "preprocess",
	}))
	require.NoError(t, w.WriteSummary(context.Background(), &SummaryRecord{
		Result:    "failed",
		StagesRun: 1,
	}))

	scanner := bufio.NewScanner(&buf)
	var types []string
	for scanner.Scan() {
		var record Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		types = append(types, record.Type)
	}
	assert.Equal(t, []string{TypeError, TypeSummary}, types)
}

func TestWriteAfterCloseFails(t *testing.T) {
	w := NewJSONLWriter(&bytes.Buffer{}, "run-123", "local")
	require.NoError(t, w.Close())

	err := w.WriteStage(context.Background(), &StageRecord{Stage: "train"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewJSONLWriter(&bytes.Buffer{}, "run-123", "local")
	err := w.WriteStage(ctx, &StageRecord{Stage: "train"})
	assert.ErrorIs(t, err, context.Canceled)
}

// trickleWriter accepts at most one byte per call, exercising the
// short-write path.
type trickleWriter struct {
	buf bytes.Buffer
}

func (tw *trickleWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	tw.buf.WriteByte(p[0])
	return 1, nil
}

func TestShortWritesProduceCompleteLines(t *testing.T) {
	tw := &trickleWriter{}
	w := NewJSONLWriter(tw, "run-123", "local")

	require.NoError(t, w.WriteStage(context.Background(), &StageRecord{
		Stage:   "docker_build",
		Outcome: OutcomeSuccess,
	}))

	line := tw.buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	var record Record
	assert.NoError(t, json.Unmarshal([]byte(line), &record))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestUnderlyingWriteFailure(t *testing.T) {
	w := NewJSONLWriter(failingWriter{}, "run-123", "local")
	err := w.WriteStage(context.Background(), &StageRecord{Stage: "train"})

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "write", writeErr.Op)
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "local")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WriteStage(context.Background(), &StageRecord{
				Stage:   "health_check",
				Outcome: OutcomeSuccess,
			})
		}()
	}
	wg.Wait()

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var record Record
		assert.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
	}
	assert.Equal(t, 20, lines)
}
