package domain

import "time"

// TaskIDSync identifies the recurring Jira sync task.
const TaskIDSync = "jira-sync"

// DefaultSyncInterval is how often the scheduled sync runs.
const DefaultSyncInterval = time.Hour

// DefaultHistoryLimit is how many results are kept per task.
const DefaultHistoryLimit = 100

// ScheduledTask represents a recurring background task.
type ScheduledTask struct {
	// ID is the unique identifier for the task.
	ID string

	// Name is a human-readable name for the task.
	Name string

	// Interval defines how often the task should run.
	Interval time.Duration

	// LastRun is when the task last ran.
	LastRun time.Time

	// NextRun is when the task should run next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the task last completed successfully.
	LastSuccess time.Time

	// Enabled indicates whether the task is active.
	Enabled bool
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// TaskResult is the outcome of one scheduled sync run.
type TaskResult struct {
	TaskID      string
	ExecutionID string
	State       RunState

	StartedAt time.Time
	EndedAt   time.Time

	// Success is false when the run returned an error.
	Success bool
	Error   string

	Processed int
	Uploaded  int
	Skipped   int
	Failed    int
}

// Record copies the counters of a sync report into the result.
func (r *TaskResult) Record(report *SyncReport) {
	if report == nil {
		return
	}
	r.ExecutionID = report.ExecutionID
	r.State = report.State
	r.Processed = report.Processed
	r.Uploaded = report.Uploaded
	r.Skipped = report.SkippedUnchanged
	r.Failed = report.Failed
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Interval is the time between the end of one run and the start of
	// the next.
	Interval time.Duration

	// HistoryLimit is how many results are kept per task.
	HistoryLimit int

	// Clean removes index documents for issues that no longer exist.
	Clean bool

	// MaxRuns stops the scheduler after that many runs. Zero runs until
	// stopped.
	MaxRuns int
}

// WithDefaults fills unset fields.
func (c SchedulerConfig) WithDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSyncInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	return c
}
