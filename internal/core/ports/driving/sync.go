package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// SyncOrchestrator runs sync jobs against the target index.
type SyncOrchestrator interface {
	// Run executes one full sync run. The report is always returned, even
	// when the run fails; the error is the run-fatal cause.
	Run(ctx context.Context, opts SyncOptions) (*domain.SyncReport, error)

	// Stop requests cooperative cancellation of the current run.
	Stop()

	// Status returns a snapshot of the current or last run.
	Status() SyncStatus

	// JobStatus asks the index for the state of a job.
	JobStatus(ctx context.Context, executionID string) (domain.SyncJob, error)
}

// SyncOptions tunes a single run.
type SyncOptions struct {
	// DryRun extracts and assembles but never contacts the index.
	DryRun bool

	// Clean deletes every cached document from the index before extraction.
	Clean bool

	// Since restricts extraction to issues updated at or after this time.
	Since time.Time

	// Projects overrides the configured project list when non-empty.
	Projects []string
}

// SyncStatus represents the current state of a sync run.
type SyncStatus struct {
	// ExecutionID identifies the remote job, if one was started.
	ExecutionID string

	// State is the orchestrator state.
	State domain.RunState

	// Running indicates if a run is currently in progress.
	Running bool

	// DocumentsProcessed is the count of issues processed.
	DocumentsProcessed int

	// Uploaded, Skipped and Failed are live counters.
	Uploaded int
	Skipped  int
	Failed   int
}
