// Package memory provides an in-process index used by dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure Indexer implements the interfaces.
var (
	_ driven.Indexer        = (*Indexer)(nil)
	_ driven.JobHistory     = (*Indexer)(nil)
	_ driven.PrincipalStore = (*Indexer)(nil)
)

// DefaultMaxBatchSize matches the managed index's per-call limit.
const DefaultMaxBatchSize = 10

// Indexer keeps documents and jobs in memory. It enforces one outstanding
// job and the per-call batch limit, and can inject failures.
type Indexer struct {
	mu        sync.Mutex
	maxBatch  int
	jobs      map[string]*domain.SyncJob
	order     []string
	active    string
	documents map[string]domain.Document
	summaries map[string]domain.JobSummary

	uploads [][]string
	groups  map[string]domain.GroupMembership

	// Injected failures.
	rejectIDs      map[string]string
	transportFails int
	startErr       error
	stopErr        error
}

// NewIndexer creates an in-memory indexer. A non-positive maxBatch
// selects DefaultMaxBatchSize.
func NewIndexer(maxBatch int) *Indexer {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &Indexer{
		maxBatch:  maxBatch,
		jobs:      make(map[string]*domain.SyncJob),
		documents: make(map[string]domain.Document),
		summaries: make(map[string]domain.JobSummary),
		rejectIDs: make(map[string]string),
		groups:    make(map[string]domain.GroupMembership),
	}
}

// Name identifies the backend.
func (ix *Indexer) Name() string { return "memory" }

// MaxBatchSize is the per-call document limit.
func (ix *Indexer) MaxBatchSize() int { return ix.maxBatch }

// RecentJobs returns up to limit jobs, newest first.
func (ix *Indexer) RecentJobs(_ context.Context, limit int) ([]domain.SyncJob, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var out []domain.SyncJob
	for i := len(ix.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *ix.jobs[ix.order[i]])
	}
	return out, nil
}

// Ping always succeeds.
func (ix *Indexer) Ping(_ context.Context) error { return nil }

// StartJob opens a job.
func (ix *Indexer) StartJob(_ context.Context) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.startErr != nil {
		return "", ix.startErr
	}
	if ix.active != "" {
		return "", fmt.Errorf("job %s outstanding: %w", ix.active, domain.ErrJobInProgress)
	}

	id := uuid.NewString()
	ix.jobs[id] = &domain.SyncJob{ExecutionID: id, State: domain.JobStarted, StartedAt: time.Now()}
	ix.order = append(ix.order, id)
	ix.active = id
	return id, nil
}

// UploadBatch stores documents under the active job.
func (ix *Indexer) UploadBatch(_ context.Context, docs []domain.Document, executionID string) ([]domain.DocumentResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.checkCall(executionID, len(docs)); err != nil {
		return nil, err
	}
	if ix.transportFails > 0 {
		ix.transportFails--
		return nil, fmt.Errorf("injected: %w", domain.ErrTransport)
	}

	var results []domain.DocumentResult
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		if msg, ok := ix.rejectIDs[doc.ID]; ok {
			results = append(results, domain.DocumentResult{
				ID:           doc.ID,
				Status:       domain.DocumentFailed,
				ErrorCode:    "REJECTED",
				ErrorMessage: msg,
			})
			continue
		}
		ix.documents[doc.ID] = doc
	}
	ix.uploads = append(ix.uploads, ids)
	ix.jobs[executionID].State = domain.JobInProgress
	return results, nil
}

// DeleteDocuments removes documents under the active job.
func (ix *Indexer) DeleteDocuments(_ context.Context, ids []string, executionID string) ([]domain.DocumentResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.checkCall(executionID, len(ids)); err != nil {
		return nil, err
	}
	for _, id := range ids {
		delete(ix.documents, id)
	}
	return nil, nil
}

// StopJob closes the job.
func (ix *Indexer) StopJob(_ context.Context, executionID string, summary domain.JobSummary) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.stopErr != nil {
		return ix.stopErr
	}
	job, ok := ix.jobs[executionID]
	if !ok {
		return domain.ErrNotFound
	}
	job.State = domain.JobStopped
	job.EndedAt = time.Now()
	ix.summaries[executionID] = summary
	if ix.active == executionID {
		ix.active = ""
	}
	return nil
}

// JobStatus reports the state of a job.
func (ix *Indexer) JobStatus(_ context.Context, executionID string) (domain.SyncJob, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	job, ok := ix.jobs[executionID]
	if !ok {
		return domain.SyncJob{}, domain.ErrNotFound
	}
	return *job, nil
}

func (ix *Indexer) checkCall(executionID string, n int) error {
	if executionID == "" || executionID != ix.active {
		return fmt.Errorf("execution %q is not the active job: %w", executionID, domain.ErrInvalidInput)
	}
	if n > ix.maxBatch {
		return fmt.Errorf("%d documents exceed batch limit %d: %w", n, ix.maxBatch, domain.ErrInvalidInput)
	}
	return nil
}

// RejectDocument makes uploads of id fail with message.
func (ix *Indexer) RejectDocument(id, message string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rejectIDs[id] = message
}

// ClearRejections undoes RejectDocument.
func (ix *Indexer) ClearRejections() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rejectIDs = make(map[string]string)
}

// FailNextUploads makes the next n upload calls fail as a whole.
func (ix *Indexer) FailNextUploads(n int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.transportFails = n
}

// FailStart makes StartJob fail with err.
func (ix *Indexer) FailStart(err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.startErr = err
}

// FailStop makes StopJob fail with err.
func (ix *Indexer) FailStop(err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.stopErr = err
}

// Documents returns the stored document ids in sorted order.
func (ix *Indexer) Documents() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ids := make([]string, 0, len(ix.documents))
	for id := range ix.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Document returns a stored document.
func (ix *Indexer) Document(id string) (domain.Document, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	doc, ok := ix.documents[id]
	return doc, ok
}

// Uploads returns the document ids of every accepted upload call.
func (ix *Indexer) Uploads() [][]string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([][]string, len(ix.uploads))
	copy(out, ix.uploads)
	return out
}

// Jobs returns all jobs in start order.
func (ix *Indexer) Jobs() []domain.SyncJob {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]domain.SyncJob, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, *ix.jobs[id])
	}
	return out
}

// Summary returns the summary passed to StopJob.
func (ix *Indexer) Summary(executionID string) (domain.JobSummary, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	s, ok := ix.summaries[executionID]
	return s, ok
}

// PutGroup stores a group membership, replacing any previous one.
func (ix *Indexer) PutGroup(_ context.Context, group domain.GroupMembership) error {
	if group.Name == "" {
		return fmt.Errorf("%w: group name is required", domain.ErrInvalidInput)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.groups[group.Name] = group
	return nil
}

// Group returns a stored group membership.
func (ix *Indexer) Group(name string) (domain.GroupMembership, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	g, ok := ix.groups[name]
	return g, ok
}

// Groups returns the stored group names in sorted order.
func (ix *Indexer) Groups() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	names := make([]string, 0, len(ix.groups))
	for name := range ix.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outstanding reports whether a job is open.
func (ix *Indexer) Outstanding() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.active != ""
}
