package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// Sync defaults.
const (
	DefaultPageSize            = 100
	DefaultConcurrency         = 1
	DefaultMaxRetries          = 3
	DefaultRetryInterval       = time.Second
	DefaultFailureThreshold    = 0.1
	DefaultLeaseTTL            = 2 * time.Minute
	DefaultMaxReportedFailures = 20
)

// transportErrorCode marks documents failed because their whole batch failed.
const transportErrorCode = "TRANSPORT"

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	// Query selects the issues to sync.
	Query domain.IssueQuery

	// PageSize is the number of issues fetched per search call.
	PageSize int

	// BatchSize caps documents per upload call. It is clamped to the
	// indexer's MaxBatchSize.
	BatchSize int

	// Concurrency bounds the number of batches in flight.
	Concurrency int

	// MaxRetries bounds retries of a batch after a transport failure.
	MaxRetries int

	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration

	// FailureThreshold is the maximum tolerated failed/(uploaded+failed)
	// ratio before the run is reported failed. Nil selects
	// DefaultFailureThreshold; zero fails the run on any failed document.
	FailureThreshold *float64

	// FallbackGroupTemplate names the fallback group for degraded projects.
	FallbackGroupTemplate string

	// LeaseName identifies the target index for mutual exclusion.
	LeaseName string

	// LeaseTTL is the lease lifetime; it is refreshed at a third of this.
	LeaseTTL time.Duration

	// MaxReportedFailures caps the failures listed in the report.
	MaxReportedFailures int
}

func (c SyncConfig) withDefaults(indexer driven.Indexer) SyncConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if limit := indexer.MaxBatchSize(); c.BatchSize <= 0 || (limit > 0 && c.BatchSize > limit) {
		c.BatchSize = limit
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.FailureThreshold == nil || *c.FailureThreshold < 0 {
		threshold := DefaultFailureThreshold
		c.FailureThreshold = &threshold
	}
	if c.LeaseName == "" {
		c.LeaseName = "jira-q-sync/" + indexer.Name()
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.MaxReportedFailures <= 0 {
		c.MaxReportedFailures = DefaultMaxReportedFailures
	}
	return c
}

// SyncOrchestrator drives one sync run at a time: it takes the index lease,
// opens a remote job, extracts and assembles issues, skips unchanged
// documents, uploads the rest in batches and closes the job.
type SyncOrchestrator struct {
	source      driven.IssueSource
	permissions driven.PermissionDirectory
	principals  driven.PrincipalDirectory
	assembler   driven.DocumentAssembler
	cache       driving.ChangeCache
	indexer     driven.Indexer
	leases      driven.LeaseManager
	cfg         SyncConfig

	// Optional: group memberships are published when set
	principalStore driven.PrincipalStore

	// Status tracking
	mu      sync.RWMutex
	current *domain.SyncReport
	running bool
	stopped bool
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(
	source driven.IssueSource,
	permissions driven.PermissionDirectory,
	principals driven.PrincipalDirectory,
	assembler driven.DocumentAssembler,
	cache driving.ChangeCache,
	indexer driven.Indexer,
	leases driven.LeaseManager,
	cfg SyncConfig,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		source:      source,
		permissions: permissions,
		principals:  principals,
		assembler:   assembler,
		cache:       cache,
		indexer:     indexer,
		leases:      leases,
		cfg:         cfg.withDefaults(indexer),
	}
}

// SetPrincipalStore sets the user store that receives group memberships
// after each complete run.
func (o *SyncOrchestrator) SetPrincipalStore(store driven.PrincipalStore) {
	o.principalStore = store
}

// Config returns the effective configuration.
func (o *SyncOrchestrator) Config() SyncConfig { return o.cfg }

// Run executes one sync run.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *SyncOrchestrator) Run(ctx context.Context, opts driving.SyncOptions) (*domain.SyncReport, error) {
	report := &domain.SyncReport{
		State:            domain.RunIdle,
		DryRun:           opts.DryRun,
		DegradedProjects: make(map[string]string),
		StartedAt:        time.Now(),
	}
	if err := o.begin(report); err != nil {
		report.State = domain.RunFailed
		report.Err = err
		return report, err
	}
	defer o.end(report)

	fail := func(err error) (*domain.SyncReport, error) {
		o.update(func(r *domain.SyncReport) {
			r.State = domain.RunFailed
			r.Err = err
		})
		logger.Error("Sync failed: %v", err)
		return report, err
	}

	if opts.DryRun {
		logger.Info("Dry run: the index will not be modified")
		return o.dryRun(ctx, opts, report)
	}

	// 1. Take the index lease; a held lease means another run is active
	lease, err := o.leases.Acquire(ctx, o.cfg.LeaseName, o.cfg.LeaseTTL)
	if err != nil {
		return fail(fmt.Errorf("acquire lease %s: %w", o.cfg.LeaseName, err))
	}
	stopRefresh := o.keepLease(ctx, lease)
	defer func() {
		stopRefresh()
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Release lease %s: %v", o.cfg.LeaseName, err)
		}
	}()

	// 2. Open the remote job
	executionID, err := o.indexer.StartJob(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: start job: %w", domain.ErrJobLifecycle, err))
	}
	o.update(func(r *domain.SyncReport) {
		r.ExecutionID = executionID
		r.State = domain.RunJobStarted
	})
	logger.Info("Started sync job %s on %s", executionID, o.indexer.Name())

	// The job is open from here on: every exit path must stop it.
	stopCtx := context.WithoutCancel(ctx)

	// 3. Clean mode removes previously synced documents first
	if opts.Clean {
		o.clean(ctx, executionID, false)
	}

	// 4. Extract, assemble, filter and upload
	o.setState(domain.RunExtracting)
	resolver := NewPermissionResolver(o.permissions, o.principals, o.cfg.FallbackGroupTemplate)
	interrupted, err := o.extractAndUpload(ctx, opts, executionID, resolver)
	if err != nil {
		if stopErr := o.stopJob(stopCtx, executionID); stopErr != nil {
			logger.Error("Stop job %s after failure: %v", executionID, stopErr)
		}
		return fail(err)
	}

	// 5. Publish group memberships to the index's user store
	if !interrupted {
		o.publishGroups(stopCtx, resolver)
	}

	// 6. Close the remote job
	if interrupted {
		o.setState(domain.RunStopping)
	} else {
		o.setState(domain.RunCompleting)
	}
	if err := o.stopJob(stopCtx, executionID); err != nil {
		return fail(fmt.Errorf("%w: stop job %s: %w", domain.ErrJobLifecycle, executionID, err))
	}

	if interrupted {
		o.update(func(r *domain.SyncReport) {
			r.State = domain.RunStopped
			r.Err = domain.ErrSyncStopped
		})
		logger.Warn("Sync job %s stopped before completion", executionID)
		return report, domain.ErrSyncStopped
	}

	snap := o.snapshot()
	if ratio, threshold := snap.FailureRatio(), *o.cfg.FailureThreshold; ratio > threshold {
		return fail(fmt.Errorf("%w: %.1f%% > %.1f%%",
			domain.ErrFailureThreshold, ratio*100, threshold*100))
	}

	o.setState(domain.RunSucceeded)
	snap = o.snapshot()
	logger.Info("Sync complete: %s", snap.String())
	return report, nil
}

// Stop requests cooperative cancellation of the current run. In-flight
// batches finish; the remote job is then stopped.
func (o *SyncOrchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		o.stopped = true
	}
}

// Status returns a snapshot of the current or last run.
func (o *SyncOrchestrator) Status() driving.SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.current == nil {
		return driving.SyncStatus{State: domain.RunIdle}
	}
	return driving.SyncStatus{
		ExecutionID:        o.current.ExecutionID,
		State:              o.current.State,
		Running:            o.running,
		DocumentsProcessed: o.current.Processed,
		Uploaded:           o.current.Uploaded,
		Skipped:            o.current.SkippedUnchanged,
		Failed:             o.current.Failed,
	}
}

// JobStatus asks the index for the state of a job.
func (o *SyncOrchestrator) JobStatus(ctx context.Context, executionID string) (domain.SyncJob, error) {
	job, err := o.indexer.JobStatus(ctx, executionID)
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("get job %s: %w", executionID, err)
	}
	return job, nil
}

// dryRun extracts and filters without contacting the index or the lease.
func (o *SyncOrchestrator) dryRun(
	ctx context.Context,
	opts driving.SyncOptions,
	report *domain.SyncReport,
) (*domain.SyncReport, error) {
	if opts.Clean {
		o.clean(ctx, "", true)
	}

	o.setState(domain.RunExtracting)
	resolver := NewPermissionResolver(o.permissions, o.principals, o.cfg.FallbackGroupTemplate)
	interrupted, err := o.extract(ctx, opts, resolver, func(docs []domain.Document) {
		o.update(func(r *domain.SyncReport) {
			r.Uploaded += len(docs)
			r.Batches++
		})
	})
	if err != nil {
		o.update(func(r *domain.SyncReport) {
			r.State = domain.RunFailed
			r.Err = err
		})
		return report, err
	}
	if interrupted {
		o.setState(domain.RunStopped)
		return report, domain.ErrSyncStopped
	}
	o.setState(domain.RunSucceeded)
	return report, nil
}

// extractAndUpload streams documents into batches uploaded with bounded
// parallelism. It reports whether the run was interrupted.
func (o *SyncOrchestrator) extractAndUpload(
	ctx context.Context,
	opts driving.SyncOptions,
	executionID string,
	resolver *PermissionResolver,
) (bool, error) {
	// In-flight batches complete even when the run is cancelled.
	uploadCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	interrupted, err := o.extract(ctx, opts, resolver, func(docs []domain.Document) {
		g.Go(func() error {
			o.uploadBatch(uploadCtx, executionID, docs)
			return nil
		})
	})

	if err == nil {
		o.setState(domain.RunUploading)
	}
	_ = g.Wait()
	return interrupted, err
}

// extract pages through the tracker and hands full batches of changed
// documents to submit. The final partial batch is submitted unless the
// run was interrupted.
//
//nolint:gocognit // Pagination loop with per-issue pipeline
func (o *SyncOrchestrator) extract(
	ctx context.Context,
	opts driving.SyncOptions,
	resolver *PermissionResolver,
	submit func([]domain.Document),
) (bool, error) {
	query := o.cfg.Query
	if len(opts.Projects) > 0 {
		query.Projects = opts.Projects
	}
	if !opts.Since.IsZero() {
		query.UpdatedSince = opts.Since
	}
	jql := BuildJQL(query)
	logger.Debug("JQL: %s", jql)

	defer func() {
		degraded := resolver.Degraded()
		o.update(func(r *domain.SyncReport) {
			for k, v := range degraded {
				r.DegradedProjects[k] = v
			}
		})
	}()

	pending := make([]domain.Document, 0, o.cfg.BatchSize)
	startAt := 0
	for {
		if o.interrupted(ctx) {
			return true, nil
		}

		page, err := o.source.SearchIssues(ctx, jql, startAt, o.cfg.PageSize)
		if err != nil {
			if o.interrupted(ctx) {
				return true, nil
			}
			return false, fmt.Errorf("search issues at %d: %w", startAt, err)
		}
		logger.Debug("Fetched %d issues (%d-%d of %d)",
			len(page.Issues), startAt, startAt+len(page.Issues), page.Total)

		for i := range page.Issues {
			doc, ok := o.prepare(ctx, resolver, &page.Issues[i])
			if !ok {
				continue
			}
			pending = append(pending, doc)
			if len(pending) == o.cfg.BatchSize {
				if o.interrupted(ctx) {
					return true, nil
				}
				submit(pending)
				pending = make([]domain.Document, 0, o.cfg.BatchSize)
			}
		}

		// Advance from the requested offset; servers may echo a stale startAt.
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	if len(pending) > 0 {
		if o.interrupted(ctx) {
			return true, nil
		}
		submit(pending)
	}
	return false, nil
}

// publishGroups writes every learnt group membership to the principal
// store. Failures are logged and counted without failing the run.
func (o *SyncOrchestrator) publishGroups(ctx context.Context, resolver *PermissionResolver) {
	if o.principalStore == nil {
		return
	}
	memberships := resolver.Memberships()
	for _, m := range memberships {
		if err := o.principalStore.PutGroup(ctx, m); err != nil {
			logger.Warn("Publish group %s: %v", m.Name, err)
			o.update(func(r *domain.SyncReport) { r.GroupErrors++ })
			continue
		}
		o.update(func(r *domain.SyncReport) { r.GroupsPublished++ })
	}
	logger.Debug("Published %d group memberships", len(memberships))
}

// prepare turns an issue into a document. It returns false when the issue
// failed assembly or is unchanged since its last successful upload.
func (o *SyncOrchestrator) prepare(
	ctx context.Context,
	resolver *PermissionResolver,
	issue *domain.Issue,
) (domain.Document, bool) {
	o.update(func(r *domain.SyncReport) { r.Processed++ })

	projectKey := issue.ProjectKey
	if projectKey == "" {
		projectKey, _, _ = strings.Cut(issue.Key, "-")
	}
	access := resolver.Resolve(ctx, projectKey)

	assembled, err := o.assembler.Assemble(*issue)
	if err != nil {
		logger.Warn("Assemble %s: %v", issue.Key, err)
		o.update(func(r *domain.SyncReport) {
			r.Failed++
			r.AssemblyErrors++
			o.recordFailure(r, domain.DocumentResult{
				ID:           domain.DocumentID(issue.Key),
				Status:       domain.DocumentFailed,
				ErrorCode:    "ASSEMBLY",
				ErrorMessage: err.Error(),
			})
		})
		return domain.Document{}, false
	}

	doc := domain.Document{
		ID:              domain.DocumentID(issue.Key),
		Title:           assembled.Title,
		Content:         assembled.Content,
		ContentType:     domain.ContentTypePlainText,
		Attributes:      assembled.Attributes,
		ACL:             BuildACL(projectKey, access),
		SourceURI:       assembled.SourceURI,
		SourceUpdatedAt: issue.Updated,
	}

	if !o.cache.ShouldUpload(ctx, doc) {
		o.update(func(r *domain.SyncReport) { r.SkippedUnchanged++ })
		return domain.Document{}, false
	}
	return doc, true
}

// uploadBatch submits one batch, retrying transport failures, and records
// each document's outcome.
func (o *SyncOrchestrator) uploadBatch(ctx context.Context, executionID string, docs []domain.Document) {
	results, err := o.withRetry(ctx, "upload batch", func() ([]domain.DocumentResult, error) {
		return o.indexer.UploadBatch(ctx, docs, executionID)
	})

	failed := make(map[string]domain.DocumentResult)
	if err != nil {
		logger.Error("Batch of %d documents failed: %v", len(docs), err)
		for _, doc := range docs {
			failed[doc.ID] = domain.DocumentResult{
				ID:           doc.ID,
				Status:       domain.DocumentFailed,
				ErrorCode:    transportErrorCode,
				ErrorMessage: err.Error(),
			}
		}
	} else {
		for _, res := range results {
			if !res.Succeeded() {
				failed[res.ID] = res
			}
		}
	}

	var uploaded, cacheErrors int
	var failures []domain.DocumentResult
	for _, doc := range docs {
		res, isFailed := failed[doc.ID]
		if isFailed {
			logger.Warn("Document %s failed: %s %s", doc.ID, res.ErrorCode, res.ErrorMessage)
			failures = append(failures, res)
		} else {
			uploaded++
		}
		if err := o.cache.RecordOutcome(ctx, doc, !isFailed); err != nil {
			logger.Warn("%v", err)
			cacheErrors++
		}
	}

	o.update(func(r *domain.SyncReport) {
		r.Batches++
		r.Uploaded += uploaded
		r.Failed += len(failures)
		r.CacheErrors += cacheErrors
		for _, f := range failures {
			o.recordFailure(r, f)
		}
	})
	logger.Debug("Batch done: %d uploaded, %d failed", uploaded, len(failures))
}

// clean deletes every cached document from the index and forgets it.
func (o *SyncOrchestrator) clean(ctx context.Context, executionID string, dryRun bool) {
	ids, err := o.cache.DocumentIDs(ctx)
	if err != nil {
		logger.Warn("Clean: %v", err)
		return
	}
	logger.Info("Clean: %d previously synced documents", len(ids))
	if dryRun {
		o.update(func(r *domain.SyncReport) { r.Deleted += len(ids) })
		return
	}

	for _, batch := range SplitBatches(ids, o.cfg.BatchSize) {
		results, err := o.withRetry(ctx, "delete documents", func() ([]domain.DocumentResult, error) {
			return o.indexer.DeleteDocuments(ctx, batch, executionID)
		})
		if err != nil {
			logger.Error("Delete batch of %d documents failed: %v", len(batch), err)
			continue
		}

		failed := make(map[string]bool)
		for _, res := range results {
			if !res.Succeeded() {
				failed[res.ID] = true
				logger.Warn("Delete %s failed: %s %s", res.ID, res.ErrorCode, res.ErrorMessage)
			}
		}
		deleted := make([]string, 0, len(batch))
		for _, id := range batch {
			if !failed[id] {
				deleted = append(deleted, id)
			}
		}
		if err := o.cache.Forget(ctx, deleted...); err != nil {
			logger.Warn("Clean: %v", err)
		}
		o.update(func(r *domain.SyncReport) { r.Deleted += len(deleted) })
	}
}

// withRetry retries transport-wide failures with exponential backoff.
func (o *SyncOrchestrator) withRetry(
	ctx context.Context,
	op string,
	call func() ([]domain.DocumentResult, error),
) ([]domain.DocumentResult, error) {
	var results []domain.DocumentResult
	attempt := func() error {
		res, err := call()
		if err != nil {
			if errors.Is(err, domain.ErrAuthInvalid) || errors.Is(err, domain.ErrInvalidInput) {
				return backoff.Permanent(err)
			}
			return err
		}
		results = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Warn("%s failed, retrying in %s: %v", op, wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return results, nil
}

func (o *SyncOrchestrator) stopJob(ctx context.Context, executionID string) error {
	snap := o.snapshot()
	summary := domain.JobSummary{
		Uploaded: snap.Uploaded,
		Skipped:  snap.SkippedUnchanged,
		Failed:   snap.Failed,
	}
	if err := o.indexer.StopJob(ctx, executionID, summary); err != nil {
		return err
	}
	logger.Info("Stopped sync job %s", executionID)
	return nil
}

// keepLease refreshes the lease until the returned func is called.
func (o *SyncOrchestrator) keepLease(ctx context.Context, lease driven.Lease) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.cfg.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lease.Refresh(context.WithoutCancel(ctx), o.cfg.LeaseTTL); err != nil {
					logger.Warn("Refresh lease %s: %v", o.cfg.LeaseName, err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// interrupted reports whether the run was cancelled or Stop was called.
func (o *SyncOrchestrator) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopped
}

// begin marks a run as active. Only one run per orchestrator at a time.
func (o *SyncOrchestrator) begin(report *domain.SyncReport) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return domain.ErrJobInProgress
	}
	o.running = true
	o.stopped = false
	o.current = report
	return nil
}

func (o *SyncOrchestrator) end(report *domain.SyncReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	report.Duration = time.Since(report.StartedAt)
}

func (o *SyncOrchestrator) update(fn func(r *domain.SyncReport)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.current)
}

func (o *SyncOrchestrator) setState(state domain.RunState) {
	o.update(func(r *domain.SyncReport) { r.State = state })
}

// snapshot returns a copy of the current report's counters.
func (o *SyncOrchestrator) snapshot() domain.SyncReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return *o.current
}

// recordFailure must be called with o.mu held.
func (o *SyncOrchestrator) recordFailure(r *domain.SyncReport, res domain.DocumentResult) {
	if len(r.Failures) < o.cfg.MaxReportedFailures {
		r.Failures = append(r.Failures, res)
	}
}
