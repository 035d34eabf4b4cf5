package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// maxCheckInterval bounds how long the loop sleeps between due checks.
const maxCheckInterval = time.Minute

// SyncRunner runs one sync.
type SyncRunner interface {
	Run(ctx context.Context, opts driving.SyncOptions) (*domain.SyncReport, error)
}

// Scheduler runs the Jira sync on an interval and records every run. Runs
// never overlap: the next run is due Interval after the previous one ends.
// Task state lives in the store, so a restarted scheduler keeps its
// timetable instead of syncing immediately.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	runner SyncRunner
	now    func() time.Time

	mu      sync.Mutex
	running bool
	runs    int
	stopCh  chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(config domain.SchedulerConfig, store driven.SchedulerStore, runner SyncRunner) *Scheduler {
	return &Scheduler{
		config: config.WithDefaults(),
		store:  store,
		runner: runner,
		now:    time.Now,
	}
}

// Start runs the scheduler loop. It blocks until Stop is called, ctx is
// cancelled or MaxRuns runs have completed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.runs = 0
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
	}()

	if err := s.ensureTask(ctx); err != nil {
		return err
	}
	return s.run(ctx)
}

// Stop ends Start after the current run finishes.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// Runs reports how many runs the current or last Start performed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// ensureTask creates the sync task or applies a changed interval to it.
func (s *Scheduler) ensureTask(ctx context.Context) error {
	task, err := s.store.GetTask(ctx, domain.TaskIDSync)
	if err != nil {
		return err
	}

	now := s.now()
	if task == nil {
		task = &domain.ScheduledTask{
			ID:       domain.TaskIDSync,
			Name:     "Jira sync",
			Interval: s.config.Interval,
			NextRun:  now,
		}
	} else if task.Interval != s.config.Interval {
		task.Interval = s.config.Interval
		task.NextRun = now
		if !task.LastRun.IsZero() {
			task.NextRun = task.LastRun.Add(task.Interval)
		}
	}
	task.Enabled = true

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	ticker := time.NewTicker(min(s.config.Interval, maxCheckInterval))
	defer ticker.Stop()

	for {
		if err := s.checkAndRunDue(ctx); err != nil {
			return err
		}
		if s.finished() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.MaxRuns > 0 && s.runs >= s.config.MaxRuns
}

func (s *Scheduler) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// checkAndRunDue runs the sync task if it is due. Store failures are
// fatal: without task state the timetable cannot be kept.
func (s *Scheduler) checkAndRunDue(ctx context.Context) error {
	if s.stopping() || ctx.Err() != nil {
		return nil
	}
	task, err := s.store.GetTask(ctx, domain.TaskIDSync)
	if err != nil {
		return err
	}
	if task == nil || !task.Due(s.now()) {
		return nil
	}
	return s.runTask(ctx, task)
}

// runTask executes one sync and records its outcome.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) error {
	logger.Section("Scheduled sync")

	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: s.now(),
	}

	report, err := s.runner.Run(ctx, driving.SyncOptions{Clean: s.config.Clean})

	result.EndedAt = s.now()
	result.Record(report)
	if err != nil {
		result.Error = err.Error()
		if result.State == "" {
			result.State = domain.RunFailed
		}
		task.LastError = err.Error()
		logger.Warn("Scheduled sync failed: %v", err)
	} else {
		result.Success = true
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	}

	task.LastRun = result.StartedAt
	task.NextRun = result.EndedAt.Add(task.Interval)

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	// Record even when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.SaveTask(saveCtx, task); err != nil {
		return err
	}
	if err := s.store.RecordResult(saveCtx, result); err != nil {
		return err
	}
	if err := s.store.PruneHistory(saveCtx, s.config.HistoryLimit); err != nil {
		logger.Warn("Pruning sync history failed: %v", err)
	}

	logger.Info("Next sync at %s", task.NextRun.Format(time.RFC3339))
	return nil
}

// History returns the most recent results of the sync task.
func History(ctx context.Context, store driven.SchedulerStore, limit int) (*domain.ScheduledTask, []domain.TaskResult, error) {
	task, err := store.GetTask(ctx, domain.TaskIDSync)
	if err != nil {
		return nil, nil, err
	}
	results, err := store.GetTaskHistory(ctx, domain.TaskIDSync, limit)
	if err != nil {
		return nil, nil, err
	}
	return task, results, nil
}
