package driven

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// Indexer is the managed search index that receives documents.
//
// Every upload and delete is tagged with the execution id of an outstanding
// sync job. Only one job may be outstanding per index.
type Indexer interface {
	// Name identifies the backend for logs and reports.
	Name() string

	// StartJob opens a sync job and returns its execution id.
	// Returns domain.ErrJobInProgress if a job is already outstanding.
	StartJob(ctx context.Context) (string, error)

	// UploadBatch submits up to MaxBatchSize documents.
	// A non-nil error means the call failed as a whole and no per-document
	// results are available. Documents absent from the results succeeded.
	UploadBatch(ctx context.Context, docs []domain.Document, executionID string) ([]domain.DocumentResult, error)

	// DeleteDocuments removes documents by id, with the same result semantics
	// as UploadBatch.
	DeleteDocuments(ctx context.Context, ids []string, executionID string) ([]domain.DocumentResult, error)

	// StopJob closes the job.
	StopJob(ctx context.Context, executionID string, summary domain.JobSummary) error

	// JobStatus reports the state of a job.
	JobStatus(ctx context.Context, executionID string) (domain.SyncJob, error)

	// MaxBatchSize is the hard per-call document limit.
	MaxBatchSize() int
}

// JobHistory lists past jobs of an index.
type JobHistory interface {
	// RecentJobs returns up to limit jobs, newest first.
	RecentJobs(ctx context.Context, limit int) ([]domain.SyncJob, error)
}
