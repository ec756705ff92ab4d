package report

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for a deployment run.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// a complete record as a single line of JSON followed by a newline.
type Writer interface {
	// WriteStage emits a stage outcome record.
	WriteStage(ctx context.Context, stage *StageRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WriteSummary emits the final summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex so lines never interleave.
type JSONLWriter struct {
	w     io.Writer
	runID string
	mode  string
	mu    sync.Mutex

	closed bool
}

// NewJSONLWriter creates a writer correlating all records to one run.
//
// The underlying writer (stdout, file) stays owned by the caller; Close does
// not close it.
func NewJSONLWriter(w io.Writer, runID, mode string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID, mode: mode}
}

// WriteStage emits a stage outcome record.
func (jw *JSONLWriter) WriteStage(ctx context.Context, stage *StageRecord) error {
	return jw.writeRecord(ctx, TypeStage, stage)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits the final summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed. Further writes return ErrWriterClosed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while holding
// the mutex, so each JSONL line lands atomically.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		RunID: jw.runID,
		Mode:  jw.mode,
		Data:  dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with nil error; a short write would
	// truncate a JSONL line and corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll loops until all bytes are written or an error occurs.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// NopWriter discards all records. Used when JSONL output is not requested.
type NopWriter struct{}

func (NopWriter) WriteStage(context.Context, *StageRecord) error     { return nil }
func (NopWriter) WriteError(context.Context, *ErrorRecord) error     { return nil }
func (NopWriter) WriteSummary(context.Context, *SummaryRecord) error { return nil }
func (NopWriter) Close() error                                       { return nil }

var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = NopWriter{}
)
