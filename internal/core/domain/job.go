package domain

import (
	"fmt"
	"time"
)

// JobState is the remote sync job's state.
type JobState string

const (
	JobStarted    JobState = "STARTED"
	JobInProgress JobState = "IN_PROGRESS"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
	JobStopped    JobState = "STOPPED"
)

// Outstanding reports whether the job still blocks new jobs on the index.
func (s JobState) Outstanding() bool {
	return s == JobStarted || s == JobInProgress
}

// SyncJob is one execution on the indexing service.
type SyncJob struct {
	ExecutionID string
	State       JobState
	StartedAt   time.Time
	EndedAt     time.Time
	Error       string
}

// JobSummary is passed to the indexing service when the job is stopped.
type JobSummary struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// RunState is the orchestrator's state machine position.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunJobStarted RunState = "job_started"
	RunExtracting RunState = "extracting"
	RunUploading  RunState = "uploading"
	RunCompleting RunState = "completing"
	RunSucceeded  RunState = "succeeded"
	RunFailed     RunState = "failed"
	RunStopping   RunState = "stopping"
	RunStopped    RunState = "stopped"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunStopped
}

// SyncReport summarises a single sync run. It lets operators distinguish
// "nothing changed" from "something is silently broken".
type SyncReport struct {
	ExecutionID string
	State       RunState
	DryRun      bool

	Processed        int
	Uploaded         int
	SkippedUnchanged int
	Failed           int
	Deleted          int
	Batches          int
	AssemblyErrors   int
	CacheErrors      int

	// GroupsPublished counts memberships written to the index's user store.
	GroupsPublished int
	GroupErrors     int

	// DegradedProjects maps project key to the failed resolution step.
	DegradedProjects map[string]string

	// Failures lists up to a bounded number of failed document ids with reasons.
	Failures []DocumentResult

	StartedAt time.Time
	Duration  time.Duration

	// Err is the run-fatal error, if any.
	Err error
}

// FailureRatio is failed / attempted, or zero when nothing was attempted.
func (r *SyncReport) FailureRatio() float64 {
	attempted := r.Uploaded + r.Failed
	if attempted == 0 {
		return 0
	}
	return float64(r.Failed) / float64(attempted)
}

// String implements fmt.Stringer.
func (r *SyncReport) String() string {
	return fmt.Sprintf("%s: %d uploaded, %d skipped (unchanged), %d failed, %d degraded projects",
		r.State, r.Uploaded, r.SkippedUnchanged, r.Failed, len(r.DegradedProjects))
}
