package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/model"
)

func newTestHistory(t *testing.T) *SQLiteActionHistory {
	t.Helper()
	store, err := NewSQLiteActionHistory(zap.NewNop(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteActionHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Store And List", func(t *testing.T) {
		store := newTestHistory(t)

		run := NewActionRun(model.ActionProcess, "2025-06-09", model.TriggerScheduled,
			time.Now().Add(-time.Second), "/data/workbooks/20250609_Test.xlsx", nil)
		require.NoError(t, store.Store(ctx, run))

		runs, err := store.List(ctx, nil, 0, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
		assert.Equal(t, model.ActionProcess, runs[0].Kind)
		assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
		assert.Equal(t, run.Detail, runs[0].Detail)
		assert.Empty(t, runs[0].Error)
	})

	t.Run("Failed Run Records The Error", func(t *testing.T) {
		store := newTestHistory(t)

		run := NewActionRun(model.ActionSend, "2025-06-09", model.TriggerScheduled,
			time.Now(), "", errors.New("smtp: connection refused"))
		require.NoError(t, store.Store(ctx, run))

		runs, err := store.List(ctx, nil, 0, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, model.RunStatusFailed, runs[0].Status)
		assert.Contains(t, runs[0].Error, "connection refused")
	})

	t.Run("List Filters And Orders Newest First", func(t *testing.T) {
		store := newTestHistory(t)
		base := time.Now().Add(-time.Hour)

		for i, kind := range []model.ActionKind{model.ActionProcess, model.ActionSend, model.ActionProcess} {
			run := NewActionRun(kind, "2025-06-09", model.TriggerManual, base.Add(time.Duration(i)*time.Minute), "", nil)
			require.NoError(t, store.Store(ctx, run))
		}

		runs, err := store.List(ctx, map[string]interface{}{"kind": string(model.ActionProcess)}, 0, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

		runs, err = store.List(ctx, map[string]interface{}{"trigger": string(model.TriggerManual)}, 0, 10)
		require.NoError(t, err)
		assert.Len(t, runs, 3)
	})

	t.Run("Pagination", func(t *testing.T) {
		store := newTestHistory(t)
		base := time.Now().Add(-time.Hour)

		for i := 0; i < 5; i++ {
			run := NewActionRun(model.ActionCapture, "2025-06-09", model.TriggerScheduled, base.Add(time.Duration(i)*time.Minute), "", nil)
			require.NoError(t, store.Store(ctx, run))
		}

		page, err := store.List(ctx, nil, 0, 2)
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := store.List(ctx, nil, 4, 2)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("Count", func(t *testing.T) {
		store := newTestHistory(t)

		require.NoError(t, store.Store(ctx, NewActionRun(model.ActionProcess, "2025-06-09", model.TriggerScheduled, time.Now(), "", nil)))
		require.NoError(t, store.Store(ctx, NewActionRun(model.ActionSend, "2025-06-09", model.TriggerScheduled, time.Now(), "", nil)))

		count, err := store.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = store.Count(ctx, map[string]interface{}{"kind": string(model.ActionSend)})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Unknown Filter Column Rejected", func(t *testing.T) {
		store := newTestHistory(t)

		_, err := store.List(ctx, map[string]interface{}{"id; DROP TABLE": "x"}, 0, 10)
		assert.ErrorContains(t, err, "unknown filter column")

		_, err = store.Count(ctx, map[string]interface{}{"bogus": "x"})
		assert.ErrorContains(t, err, "unknown filter column")
	})

	t.Run("DeleteBefore", func(t *testing.T) {
		store := newTestHistory(t)
		now := time.Now()

		old := NewActionRun(model.ActionProcess, "2025-03-01", model.TriggerScheduled, now.Add(-100*24*time.Hour), "", nil)
		recent := NewActionRun(model.ActionProcess, "2025-06-09", model.TriggerScheduled, now.Add(-time.Hour), "", nil)
		require.NoError(t, store.Store(ctx, old))
		require.NoError(t, store.Store(ctx, recent))

		require.NoError(t, store.DeleteBefore(ctx, now.Add(-90*24*time.Hour)))

		runs, err := store.List(ctx, nil, 0, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, recent.ID, runs[0].ID)
	})
}
