package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

func testLayout(t *testing.T) Layout {
	dir := t.TempDir()
	return Layout{
		RawData:       filepath.Join(dir, "raw.csv"),
		ProcessedData: filepath.Join(dir, "processed.csv"),
		Model:         filepath.Join(dir, "model.joblib"),
	}
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestNeedsPreprocess(t *testing.T) {
	now := time.Now()

	t.Run("runs when processed absent and raw present", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.RawData, now)

		need, err := l.NeedsPreprocess()
		require.NoError(t, err)
		assert.True(t, need)
	})

	t.Run("skipped when processed exists", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.ProcessedData, now)

		need, err := l.NeedsPreprocess()
		require.NoError(t, err)
		assert.False(t, need)
	})

	t.Run("skipped even when raw is newer than processed", func(t *testing.T) {
		// Known staleness gap: existence is the only trigger.
		l := testLayout(t)
		touch(t, l.ProcessedData, now.Add(-time.Hour))
		touch(t, l.RawData, now)

		need, err := l.NeedsPreprocess()
		require.NoError(t, err)
		assert.False(t, need)
		assert.True(t, l.Stale())
	})

	t.Run("prerequisite error when raw and processed both absent", func(t *testing.T) {
		l := testLayout(t)

		_, err := l.NeedsPreprocess()
		require.Error(t, err)
		assert.True(t, apperrors.IsPrerequisite(err))
	})
}

func TestNeedsTraining(t *testing.T) {
	now := time.Now()

	t.Run("model absent triggers training", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.ProcessedData, now)

		need, err := l.NeedsTraining()
		require.NoError(t, err)
		assert.True(t, need)
	})

	t.Run("model newer than processed skips training", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.ProcessedData, now.Add(-time.Hour))
		touch(t, l.Model, now)

		need, err := l.NeedsTraining()
		require.NoError(t, err)
		assert.False(t, need)
	})

	t.Run("processed strictly newer triggers retraining", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.Model, now.Add(-time.Hour))
		touch(t, l.ProcessedData, now)

		need, err := l.NeedsTraining()
		require.NoError(t, err)
		assert.True(t, need)
	})

	t.Run("equal mtimes do not retrain", func(t *testing.T) {
		l := testLayout(t)
		ts := now.Truncate(time.Second)
		touch(t, l.Model, ts)
		touch(t, l.ProcessedData, ts)

		need, err := l.NeedsTraining()
		require.NoError(t, err)
		assert.False(t, need)
	})

	t.Run("processed missing with model present is a prerequisite error", func(t *testing.T) {
		l := testLayout(t)
		touch(t, l.Model, now)

		_, err := l.NeedsTraining()
		require.Error(t, err)
		assert.True(t, apperrors.IsPrerequisite(err))
	})
}

func TestAssertModel(t *testing.T) {
	l := testLayout(t)

	err := l.AssertModel()
	require.Error(t, err)
	assert.True(t, apperrors.IsPrerequisite(err))

	touch(t, l.Model, time.Now())
	assert.NoError(t, l.AssertModel())
}

func TestModelAge(t *testing.T) {
	l := testLayout(t)
	now := time.Now()

	assert.Zero(t, l.ModelAge(now))

	touch(t, l.Model, now.Add(-30*time.Minute))
	age := l.ModelAge(now)
	assert.InDelta(t, (30 * time.Minute).Seconds(), age.Seconds(), 5)
}
