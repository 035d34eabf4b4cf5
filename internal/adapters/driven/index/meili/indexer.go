package meili

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure Indexer implements the interfaces.
var (
	_ driven.Indexer    = (*Indexer)(nil)
	_ driven.JobHistory = (*Indexer)(nil)
)

const (
	// DefaultIndexUID is the index used when none is configured.
	DefaultIndexUID = "jira_issues"

	// DefaultMaxBatchSize bounds documents per upload call.
	DefaultMaxBatchSize = 100

	// taskFailedCode marks documents of a failed indexing task.
	taskFailedCode = "TASK_FAILED"
)

// Record field names.
const (
	fieldID            = "id"
	fieldTitle         = "title"
	fieldContent       = "content"
	fieldContentType   = "content_type"
	fieldSourceURI     = "source_uri"
	fieldAllowedUsers  = "allowed_users"
	fieldAllowedGroups = "allowed_groups"
	fieldExecutionID   = "execution_id"
)

// filterableFields are configured on the index at start.
var filterableFields = []string{
	fieldAllowedUsers, fieldAllowedGroups, fieldExecutionID,
	"jira_project", "jira_status", "jira_issue_type", "jira_labels", "last_updated_at",
}

// Config configures the Meilisearch indexer.
type Config struct {
	URL          string
	APIKey       string
	IndexUID     string
	MaxBatchSize int
}

// Indexer implements driven.Indexer on Meilisearch.
type Indexer struct {
	backend  backend
	uid      string
	maxBatch int

	mu     sync.Mutex
	jobs   map[string]*domain.SyncJob
	active string
	ready  bool
}

// New creates an indexer for the Meilisearch server at cfg.URL.
func New(cfg Config) (*Indexer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: meilisearch url is required", domain.ErrInvalidInput)
	}
	return newIndexer(newClient(cfg.URL, cfg.APIKey), cfg), nil
}

func newIndexer(b backend, cfg Config) *Indexer {
	uid := cfg.IndexUID
	if uid == "" {
		uid = DefaultIndexUID
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &Indexer{
		backend:  b,
		uid:      uid,
		maxBatch: maxBatch,
		jobs:     make(map[string]*domain.SyncJob),
	}
}

// Name identifies the backend.
func (ix *Indexer) Name() string { return "meili/" + ix.uid }

// MaxBatchSize is the per-call document limit.
func (ix *Indexer) MaxBatchSize() int { return ix.maxBatch }

// RecentJobs returns up to limit jobs started by this process, newest
// first. Meilisearch has no job concept, so history is not persisted.
func (ix *Indexer) RecentJobs(_ context.Context, limit int) ([]domain.SyncJob, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	jobs := make([]domain.SyncJob, 0, len(ix.jobs))
	for _, job := range ix.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	if limit >= 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Ping checks server health.
func (ix *Indexer) Ping(_ context.Context) error {
	if err := ix.backend.Health(); err != nil {
		return fmt.Errorf("meilisearch health: %w: %w", domain.ErrTransport, err)
	}
	return nil
}

// StartJob checks the server, prepares the index on first use and opens
// a local job.
func (ix *Indexer) StartJob(_ context.Context) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.active != "" {
		return "", fmt.Errorf("job %s outstanding: %w", ix.active, domain.ErrJobInProgress)
	}
	if err := ix.backend.Health(); err != nil {
		return "", fmt.Errorf("meilisearch health: %w: %w", domain.ErrTransport, err)
	}
	if !ix.ready {
		if err := ix.backend.EnsureIndex(ix.uid, fieldID, filterableFields); err != nil {
			return "", fmt.Errorf("prepare index %s: %w: %w", ix.uid, domain.ErrTransport, err)
		}
		ix.ready = true
	}

	id := uuid.NewString()
	ix.jobs[id] = &domain.SyncJob{ExecutionID: id, State: domain.JobStarted, StartedAt: time.Now()}
	ix.active = id
	return id, nil
}

// UploadBatch adds documents in one task. A failed task fails every
// document of the batch; a client error fails the call.
func (ix *Indexer) UploadBatch(ctx context.Context, docs []domain.Document, executionID string) ([]domain.DocumentResult, error) {
	if err := ix.checkCall(executionID, len(docs)); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	records := make([]map[string]any, len(docs))
	for i := range docs {
		records[i] = toRecord(&docs[i], executionID)
	}

	taskUID, err := ix.backend.AddDocuments(ix.uid, records)
	if err != nil {
		return nil, fmt.Errorf("add documents: %w: %w", domain.ErrTransport, err)
	}
	failure, err := ix.backend.WaitTask(ctx, taskUID)
	if err != nil {
		return nil, fmt.Errorf("wait for task %d: %w: %w", taskUID, domain.ErrTransport, err)
	}
	ix.markInProgress(executionID)

	if failure == "" {
		return nil, nil
	}
	logger.Warn("Meilisearch task %d failed: %s", taskUID, failure)
	results := make([]domain.DocumentResult, len(docs))
	for i := range docs {
		results[i] = domain.DocumentResult{
			ID:           docs[i].ID,
			Status:       domain.DocumentFailed,
			ErrorCode:    taskFailedCode,
			ErrorMessage: failure,
		}
	}
	return results, nil
}

// DeleteDocuments removes documents one task per id.
func (ix *Indexer) DeleteDocuments(ctx context.Context, ids []string, executionID string) ([]domain.DocumentResult, error) {
	if err := ix.checkCall(executionID, len(ids)); err != nil {
		return nil, err
	}

	var results []domain.DocumentResult
	for _, id := range ids {
		taskUID, err := ix.backend.DeleteDocument(ix.uid, id)
		if err != nil {
			return nil, fmt.Errorf("delete document %s: %w: %w", id, domain.ErrTransport, err)
		}
		failure, err := ix.backend.WaitTask(ctx, taskUID)
		if err != nil {
			return nil, fmt.Errorf("wait for task %d: %w: %w", taskUID, domain.ErrTransport, err)
		}
		if failure != "" {
			results = append(results, domain.DocumentResult{
				ID:           id,
				Status:       domain.DocumentFailed,
				ErrorCode:    taskFailedCode,
				ErrorMessage: failure,
			})
		}
	}
	return results, nil
}

// StopJob closes the local job.
func (ix *Indexer) StopJob(_ context.Context, executionID string, summary domain.JobSummary) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	job, ok := ix.jobs[executionID]
	if !ok {
		return fmt.Errorf("job %s: %w", executionID, domain.ErrNotFound)
	}
	job.State = domain.JobCompleted
	if summary.Failed > 0 {
		job.Error = fmt.Sprintf("%d documents failed", summary.Failed)
	}
	job.EndedAt = time.Now()
	if ix.active == executionID {
		ix.active = ""
	}
	logger.Debug("Closed Meilisearch job %s (%d uploaded, %d skipped, %d failed)",
		executionID, summary.Uploaded, summary.Skipped, summary.Failed)
	return nil
}

// JobStatus reports a job opened by this process.
func (ix *Indexer) JobStatus(_ context.Context, executionID string) (domain.SyncJob, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	job, ok := ix.jobs[executionID]
	if !ok {
		return domain.SyncJob{}, fmt.Errorf("job %s: %w", executionID, domain.ErrNotFound)
	}
	return *job, nil
}

func (ix *Indexer) checkCall(executionID string, n int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if executionID == "" || executionID != ix.active {
		return fmt.Errorf("execution %q is not the active job: %w", executionID, domain.ErrInvalidInput)
	}
	if n > ix.maxBatch {
		return fmt.Errorf("%d documents exceed batch limit %d: %w", n, ix.maxBatch, domain.ErrInvalidInput)
	}
	return nil
}

func (ix *Indexer) markInProgress(executionID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if job, ok := ix.jobs[executionID]; ok && job.State == domain.JobStarted {
		job.State = domain.JobInProgress
	}
}

// toRecord flattens a document into a Meilisearch record. Attribute names
// lose leading underscores, which Meilisearch reserves. Dates are stored as
// Unix seconds so they can be range-filtered.
func toRecord(doc *domain.Document, executionID string) map[string]any {
	record := map[string]any{
		fieldID:          doc.ID,
		fieldTitle:       doc.Title,
		fieldContent:     doc.Content,
		fieldContentType: doc.ContentType,
		fieldSourceURI:   doc.SourceURI,
		fieldExecutionID: executionID,
	}

	users := make([]string, 0, len(doc.ACL.Principals))
	groups := make([]string, 0, len(doc.ACL.Principals))
	for _, p := range doc.ACL.Principals {
		if p.IsUser() {
			users = append(users, strings.ToLower(p.ID))
		} else if p.IsGroup() {
			groups = append(groups, p.ID)
		}
	}
	sort.Strings(users)
	sort.Strings(groups)
	record[fieldAllowedUsers] = users
	record[fieldAllowedGroups] = groups

	for _, a := range doc.Attributes {
		name := strings.TrimLeft(a.Name, "_")
		if name == "" || name == fieldID {
			continue
		}
		switch a.Value.Type {
		case domain.AttrString:
			record[name] = a.Value.String
		case domain.AttrStringList:
			record[name] = a.Value.StringList
		case domain.AttrLong:
			record[name] = a.Value.Long
		case domain.AttrDate:
			record[name] = a.Value.Date.Unix()
		}
	}
	return record
}
