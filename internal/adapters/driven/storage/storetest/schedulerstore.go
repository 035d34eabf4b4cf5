package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Result returns a successful sync result for task started at start.
func Result(taskID string, start time.Time) domain.TaskResult {
	return domain.TaskResult{
		TaskID:      taskID,
		ExecutionID: "exec-" + start.Format("150405.000"),
		State:       domain.RunSucceeded,
		StartedAt:   start,
		EndedAt:     start.Add(time.Minute),
		Success:     true,
		Processed:   10,
		Uploaded:    4,
		Skipped:     6,
	}
}

// RunSchedulerStoreTests exercises a SchedulerStore. newStore must return
// an empty store; it is called once per subtest.
func RunSchedulerStoreTests(t *testing.T, newStore func(t *testing.T) driven.SchedulerStore) {
	t.Helper()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("SaveAndGetTask", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		task := &domain.ScheduledTask{
			ID:          domain.TaskIDSync,
			Name:        "Jira sync",
			Interval:    45 * time.Minute,
			LastRun:     base.Add(-30 * time.Minute),
			NextRun:     base.Add(15 * time.Minute),
			LastError:   "index unreachable",
			LastSuccess: base.Add(-90 * time.Minute),
			Enabled:     true,
		}

		require.NoError(t, store.SaveTask(ctx, task))

		got, err := store.GetTask(ctx, domain.TaskIDSync)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, task.Name, got.Name)
		assert.Equal(t, task.Interval, got.Interval)
		assert.Equal(t, task.LastError, got.LastError)
		assert.True(t, got.Enabled)
		assert.True(t, task.LastRun.Equal(got.LastRun))
		assert.True(t, task.NextRun.Equal(got.NextRun))
		assert.True(t, task.LastSuccess.Equal(got.LastSuccess))
	})

	t.Run("GetTaskMissing", func(t *testing.T) {
		got, err := newStore(t).GetTask(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SaveTaskUpdates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		task := &domain.ScheduledTask{ID: "a", Name: "A", Interval: time.Hour, Enabled: true}
		require.NoError(t, store.SaveTask(ctx, task))

		task.Interval = 2 * time.Hour
		task.Enabled = false
		task.LastRun = base
		require.NoError(t, store.SaveTask(ctx, task))

		got, err := store.GetTask(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, got.Interval)
		assert.False(t, got.Enabled)
		assert.True(t, base.Equal(got.LastRun))
	})

	t.Run("ZeroTimes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: "a", Interval: time.Hour}))

		got, err := store.GetTask(ctx, "a")
		require.NoError(t, err)
		assert.True(t, got.LastRun.IsZero())
		assert.True(t, got.NextRun.IsZero())
		assert.True(t, got.LastSuccess.IsZero())
	})

	t.Run("InvalidInput", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		assert.ErrorIs(t, store.SaveTask(ctx, nil), domain.ErrInvalidInput)
		assert.ErrorIs(t, store.SaveTask(ctx, &domain.ScheduledTask{}), domain.ErrInvalidInput)
		assert.ErrorIs(t, store.RecordResult(ctx, nil), domain.ErrInvalidInput)
	})

	t.Run("ListTasks", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		tasks, err := store.ListTasks(ctx)
		require.NoError(t, err)
		assert.Empty(t, tasks)

		for _, id := range []string{"b", "a"} {
			require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: id, Interval: time.Hour}))
		}
		tasks, err = store.ListTasks(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "a", tasks[0].ID)
		assert.Equal(t, "b", tasks[1].ID)
	})

	t.Run("HistoryMostRecentFirst", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDSync, Interval: time.Hour}))

		for i := range 5 {
			result := Result(domain.TaskIDSync, base.Add(time.Duration(i)*time.Hour))
			result.Uploaded = i
			require.NoError(t, store.RecordResult(ctx, &result))
		}
		failed := domain.TaskResult{
			TaskID:    domain.TaskIDSync,
			State:     domain.RunFailed,
			StartedAt: base.Add(5 * time.Hour),
			EndedAt:   base.Add(5 * time.Hour),
			Error:     "lease held",
		}
		require.NoError(t, store.RecordResult(ctx, &failed))

		history, err := store.GetTaskHistory(ctx, domain.TaskIDSync, 3)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.False(t, history[0].Success)
		assert.Equal(t, "lease held", history[0].Error)
		assert.Empty(t, history[0].ExecutionID)
		assert.Equal(t, domain.RunFailed, history[0].State)
		assert.Equal(t, 4, history[1].Uploaded)
		assert.Equal(t, 3, history[2].Uploaded)
		assert.True(t, history[1].Success)
		assert.Equal(t, 6, history[1].Skipped)
		assert.True(t, base.Add(4*time.Hour).Equal(history[1].StartedAt))
		assert.True(t, base.Add(4*time.Hour+time.Minute).Equal(history[1].EndedAt))

		other, err := store.GetTaskHistory(ctx, "other", 3)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("PruneHistory", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"a", "b"} {
			require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: id, Interval: time.Hour}))
			for i := range 4 {
				result := Result(id, base.Add(time.Duration(i)*time.Hour))
				result.ExecutionID = fmt.Sprintf("%s-%d", id, i)
				require.NoError(t, store.RecordResult(ctx, &result))
			}
		}

		require.NoError(t, store.PruneHistory(ctx, 2))

		for _, id := range []string{"a", "b"} {
			history, err := store.GetTaskHistory(ctx, id, 10)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, id+"-3", history[0].ExecutionID)
			assert.Equal(t, id+"-2", history[1].ExecutionID)
		}
	})
}
