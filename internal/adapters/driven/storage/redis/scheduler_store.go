package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure SchedulerStore implements the interface.
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// encMode keeps sub-second precision on timestamps.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// SchedulerStore keeps tasks as CBOR values and each task's history as a
// list with the most recent result at the head.
type SchedulerStore struct {
	client *redis.Client
	prefix string
}

func (s *SchedulerStore) taskKey(id string) string    { return s.prefix + "task:" + id }
func (s *SchedulerStore) historyKey(id string) string { return s.prefix + "history:" + id }
func (s *SchedulerStore) idsKey() string              { return s.prefix + "tasks" }

// GetTask retrieves a scheduled task by ID.
// Returns nil and no error if the task does not exist.
func (s *SchedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	raw, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled task %s: %w", taskID, err)
	}

	var task domain.ScheduledTask
	if err := cbor.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode scheduled task %s: %w", taskID, err)
	}
	return &task, nil
}

// ListTasks returns all scheduled tasks ordered by id.
func (s *SchedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	sort.Strings(ids)

	tasks := make([]domain.ScheduledTask, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, *task)
		}
	}
	return tasks, nil
}

// SaveTask creates or updates a task based on ID.
func (s *SchedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}
	raw, err := encMode.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode scheduled task %s: %w", task.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(task.ID), raw, 0)
		pipe.SAdd(ctx, s.idsKey(), task.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save scheduled task %s: %w", task.ID, err)
	}
	return nil
}

// RecordResult logs a task execution result.
func (s *SchedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil || result.TaskID == "" {
		return domain.ErrInvalidInput
	}
	raw, err := encMode.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	if err := s.client.LPush(ctx, s.historyKey(result.TaskID), raw).Err(); err != nil {
		return fmt.Errorf("record task result: %w", err)
	}
	return nil
}

// GetTaskHistory returns recent results for a task, most recent first.
func (s *SchedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := s.client.LRange(ctx, s.historyKey(taskID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task history: %w", err)
	}

	results := make([]domain.TaskResult, 0, len(items))
	for _, item := range items {
		var result domain.TaskResult
		if err := cbor.Unmarshal([]byte(item), &result); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// PruneHistory keeps the most recent 'keep' results per task.
func (s *SchedulerStore) PruneHistory(ctx context.Context, keep int) error {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("list scheduled tasks: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			if keep <= 0 {
				pipe.Del(ctx, s.historyKey(id))
				continue
			}
			pipe.LTrim(ctx, s.historyKey(id), 0, int64(keep-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune task history: %w", err)
	}
	return nil
}
