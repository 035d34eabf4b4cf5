package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memindex "github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/memory"
	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
)

// --- Mock implementations for sync testing ---

// syncMockSource implements driven.IssueSource over a fixed issue list.
type syncMockSource struct {
	mu       sync.Mutex
	issues   []domain.Issue
	err      error
	calls    []int
	onSearch func(startAt int)

	// staleStartAt makes every page report StartAt 0.
	staleStartAt bool
}

func (s *syncMockSource) SearchIssues(_ context.Context, _ string, startAt, maxResults int) (domain.IssuePage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, startAt)
	hook := s.onSearch
	s.mu.Unlock()
	if hook != nil {
		hook(startAt)
	}
	if s.err != nil {
		return domain.IssuePage{}, s.err
	}
	end := startAt + maxResults
	if end > len(s.issues) {
		end = len(s.issues)
	}
	if startAt > end {
		startAt = end
	}
	page := domain.IssuePage{Issues: s.issues[startAt:end], StartAt: startAt, Total: len(s.issues)}
	if s.staleStartAt {
		page.StartAt = 0
	}
	return page, nil
}

// syncMockAssembler implements driven.DocumentAssembler.
type syncMockAssembler struct {
	fail map[string]bool
}

func (a *syncMockAssembler) Assemble(issue domain.Issue) (driven.AssembledDocument, error) {
	if a.fail[issue.Key] {
		return driven.AssembledDocument{}, fmt.Errorf("assemble %s: %w", issue.Key, domain.ErrInvalidInput)
	}
	return driven.AssembledDocument{
		Title:      "[" + issue.Key + "] " + issue.Summary,
		Content:    issue.Description,
		Attributes: []domain.Attribute{domain.StringAttr("jira_issue_key", issue.Key)},
		SourceURI:  "https://jira.example.com/browse/" + issue.Key,
	}, nil
}

func makeIssues(project string, n int) []domain.Issue {
	issues := make([]domain.Issue, 0, n)
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("%s-%d", project, i)
		issues = append(issues, domain.Issue{
			ID:          fmt.Sprintf("%d", 10000+i),
			Key:         key,
			ProjectKey:  project,
			Summary:     "Issue " + key,
			Description: "Body of " + key,
			Updated:     time.Date(2024, 5, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return issues
}

func threshold(v float64) *float64 { return &v }

type syncFixture struct {
	source    *syncMockSource
	dir       *mockDirectory
	assembler *syncMockAssembler
	store     *memory.CacheStore
	cache     *ChangeDetectionCache
	indexer   *memindex.Indexer
	leases    *memory.LeaseManager
	cfg       SyncConfig
}

func newSyncFixture(issues []domain.Issue) *syncFixture {
	store := memory.NewCacheStore()
	return &syncFixture{
		source:    &syncMockSource{issues: issues},
		dir:       engDirectory(),
		assembler: &syncMockAssembler{fail: map[string]bool{}},
		store:     store,
		cache:     NewChangeDetectionCache(store, CacheOptions{Enabled: true}),
		indexer:   memindex.NewIndexer(10),
		leases:    memory.NewLeaseManager(),
		cfg: SyncConfig{
			PageSize:      10,
			RetryInterval: time.Millisecond,
			LeaseName:     "test-index",
		},
	}
}

func (f *syncFixture) orchestrator() *SyncOrchestrator {
	return NewSyncOrchestrator(f.source, f.dir, f.dir, f.assembler, f.cache, f.indexer, f.leases, f.cfg)
}

func TestSyncOrchestrator_Run_UploadsInBatches(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 23))
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, report.State)
	assert.Equal(t, 23, report.Processed)
	assert.Equal(t, 23, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 3, report.Batches)
	assert.NotEmpty(t, report.ExecutionID)

	uploads := f.indexer.Uploads()
	require.Len(t, uploads, 3)
	assert.Len(t, uploads[0], 10)
	assert.Len(t, uploads[2], 3)
	assert.Equal(t, []int{0, 10, 20}, f.source.calls)

	jobs := f.indexer.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStopped, jobs[0].State)
	summary, ok := f.indexer.Summary(report.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, domain.JobSummary{Uploaded: 23}, summary)
	assert.False(t, f.leases.Held("test-index"))

	doc, ok := f.indexer.Document("jira-issue-ENG-7")
	require.True(t, ok)
	assert.Equal(t, domain.ContentTypePlainText, doc.ContentType)
	assert.Contains(t, doc.ACL.Principals, domain.Group("devs"))
	assert.Contains(t, doc.ACL.Principals, domain.User("alice@x.io", "Alice"))
	assert.Equal(t, int32(1), f.dir.schemeCalls.Load())
}

func TestSyncOrchestrator_Run_SkipsUnchanged(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 12))
	o := f.orchestrator()
	ctx := context.Background()

	_, err := o.Run(ctx, driving.SyncOptions{})
	require.NoError(t, err)

	f.source.issues[4].Description = "edited"
	report, err := o.Run(ctx, driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 11, report.SkippedUnchanged)
	assert.Len(t, f.indexer.Jobs(), 2)
	assert.Equal(t, []string{"jira-issue-ENG-5"}, f.indexer.Uploads()[2])
}

func TestSyncOrchestrator_Run_DocumentFailuresIsolated(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 20))
	f.cfg.FailureThreshold = threshold(0.5)
	f.indexer.RejectDocument("jira-issue-ENG-3", "document too large")
	o := f.orchestrator()
	ctx := context.Background()

	report, err := o.Run(ctx, driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 19, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "jira-issue-ENG-3", report.Failures[0].ID)

	entry, err := f.store.Get(ctx, "jira-issue-ENG-3")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, entry.Outcome)

	f.indexer.ClearRejections()
	report, err = o.Run(ctx, driving.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 19, report.SkippedUnchanged)
	assert.Equal(t, 1, report.Uploaded, "failed document is retried on the next run")
}

func TestSyncOrchestrator_Run_ZeroThresholdFailsOnAnyFailure(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 20))
	f.cfg.FailureThreshold = threshold(0)
	f.indexer.RejectDocument("jira-issue-ENG-3", "document too large")

	report, err := f.orchestrator().Run(context.Background(), driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrFailureThreshold)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.Equal(t, 1, report.Failed)
}

func TestSyncOrchestrator_Run_DefaultThresholdToleratesFewFailures(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 20))
	f.indexer.RejectDocument("jira-issue-ENG-3", "document too large")

	report, err := f.orchestrator().Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, report.State)
	assert.Equal(t, 19, report.Uploaded)
}

func TestSyncOrchestrator_Run_StaleStartAtStillAdvances(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 25))
	f.source.staleStartAt = true

	report, err := f.orchestrator().Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 25, report.Processed)
	assert.Equal(t, []int{0, 10, 20}, f.source.calls)
}

func TestSyncOrchestrator_Run_RetriesTransportFailures(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 5))
	f.cfg.MaxRetries = 3
	f.indexer.FailNextUploads(2)
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 5, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
}

func TestSyncOrchestrator_Run_RetryExhaustionFailsBatch(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 5))
	f.cfg.MaxRetries = 2
	f.indexer.FailNextUploads(100)
	o := f.orchestrator()
	ctx := context.Background()

	report, err := o.Run(ctx, driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrFailureThreshold)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.Equal(t, 5, report.Failed)
	assert.Equal(t, 0, report.Uploaded)
	assert.Equal(t, "TRANSPORT", report.Failures[0].ErrorCode)
	assert.False(t, f.indexer.Outstanding(), "job is stopped even when the run fails")
	assert.False(t, f.leases.Held("test-index"))

	entry, err := f.store.Get(ctx, "jira-issue-ENG-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, entry.Outcome)
}

func TestSyncOrchestrator_Run_LeaseHeld(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 5))
	held, err := f.leases.Acquire(context.Background(), "test-index", time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrJobInProgress)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.Empty(t, f.indexer.Jobs(), "no remote job is started")
	assert.Empty(t, f.source.calls)
}

func TestSyncOrchestrator_Run_StartJobFailure(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 5))
	f.indexer.FailStart(fmt.Errorf("conflict: %w", domain.ErrJobInProgress))
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrJobLifecycle)
	assert.ErrorIs(t, err, domain.ErrJobInProgress)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.False(t, f.leases.Held("test-index"))
	assert.Empty(t, f.source.calls)
}

func TestSyncOrchestrator_Run_StopJobFailure(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 5))
	f.indexer.FailStop(errors.New("throttled"))
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrJobLifecycle)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.Equal(t, 5, report.Uploaded)
	assert.False(t, f.leases.Held("test-index"))
}

func TestSyncOrchestrator_Run_SearchFailure(t *testing.T) {
	f := newSyncFixture(nil)
	f.source.err = errors.New("502 bad gateway")
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, report.State)
	assert.False(t, f.indexer.Outstanding())
}

func TestSyncOrchestrator_Run_StopBetweenPages(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 30))
	o := f.orchestrator()
	f.source.onSearch = func(startAt int) {
		if startAt == 10 {
			o.Stop()
		}
	}

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrSyncStopped)
	assert.Equal(t, domain.RunStopped, report.State)
	assert.Equal(t, 10, report.Uploaded)
	assert.False(t, f.indexer.Outstanding(), "job is stopped after cancellation")
	assert.False(t, f.leases.Held("test-index"))
}

func TestSyncOrchestrator_Run_ContextCancelled(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 30))
	ctx, cancel := context.WithCancel(context.Background())
	f.source.onSearch = func(startAt int) {
		if startAt == 20 {
			cancel()
		}
	}
	o := f.orchestrator()

	report, err := o.Run(ctx, driving.SyncOptions{})

	require.ErrorIs(t, err, domain.ErrSyncStopped)
	assert.Equal(t, domain.RunStopped, report.State)
	assert.Equal(t, 20, report.Uploaded)
	assert.False(t, f.indexer.Outstanding())
}

func TestSyncOrchestrator_Run_DryRun(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 15))
	o := f.orchestrator()
	ctx := context.Background()

	report, err := o.Run(ctx, driving.SyncOptions{DryRun: true})

	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 15, report.Uploaded)
	assert.Empty(t, f.indexer.Jobs())
	entries, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncOrchestrator_Run_Clean(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 12))
	o := f.orchestrator()
	ctx := context.Background()

	_, err := o.Run(ctx, driving.SyncOptions{})
	require.NoError(t, err)

	f.source.issues = f.source.issues[:2]
	report, err := o.Run(ctx, driving.SyncOptions{Clean: true})

	require.NoError(t, err)
	assert.Equal(t, 12, report.Deleted)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, []string{"jira-issue-ENG-1", "jira-issue-ENG-2"}, f.indexer.Documents())
}

func TestSyncOrchestrator_Run_AssemblyErrorsCounted(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 20))
	f.cfg.FailureThreshold = threshold(0.5)
	f.assembler.fail["ENG-2"] = true
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 19, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.AssemblyErrors)
	assert.Equal(t, "ASSEMBLY", report.Failures[0].ErrorCode)
}

func TestSyncOrchestrator_Run_DegradedProjectUsesFallback(t *testing.T) {
	issues := append(makeIssues("ENG", 2), makeIssues("HR", 2)...)
	f := newSyncFixture(issues)
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 4, report.Uploaded)
	assert.Contains(t, report.DegradedProjects, "HR")
	assert.NotContains(t, report.DegradedProjects, "ENG")

	doc, ok := f.indexer.Document("jira-issue-HR-1")
	require.True(t, ok)
	assert.Equal(t, []domain.Principal{domain.Group("jira-project-HR")}, doc.ACL.Principals)
}

func TestSyncOrchestrator_Run_ProjectOverrideAndSince(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 1))
	f.cfg.Query = domain.IssueQuery{Projects: []string{"ENG", "OPS"}}
	var jql string
	src := &jqlCapturingSource{syncMockSource: f.source, jql: &jql}
	o := NewSyncOrchestrator(src, f.dir, f.dir, f.assembler, f.cache, f.indexer, f.leases, f.cfg)

	_, err := o.Run(context.Background(), driving.SyncOptions{
		Projects: []string{"WEB"},
		Since:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Equal(t, `project in ("WEB") AND updated >= "2024-06-01 00:00" ORDER BY updated DESC`, jql)
}

type jqlCapturingSource struct {
	*syncMockSource
	jql *string
}

func (s *jqlCapturingSource) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (domain.IssuePage, error) {
	*s.jql = jql
	return s.syncMockSource.SearchIssues(ctx, jql, startAt, maxResults)
}

func TestSyncOrchestrator_Run_Concurrency(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 95))
	f.cfg.Concurrency = 4
	f.cfg.PageSize = 50
	o := f.orchestrator()

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 95, report.Uploaded)
	assert.Equal(t, 10, report.Batches)
	assert.Len(t, f.indexer.Documents(), 95)
}

func TestSyncOrchestrator_Status(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 3))
	o := f.orchestrator()

	assert.Equal(t, domain.RunIdle, o.Status().State)

	report, err := o.Run(context.Background(), driving.SyncOptions{})
	require.NoError(t, err)

	status := o.Status()
	assert.False(t, status.Running)
	assert.Equal(t, domain.RunSucceeded, status.State)
	assert.Equal(t, report.ExecutionID, status.ExecutionID)
	assert.Equal(t, 3, status.Uploaded)

	job, err := o.JobStatus(context.Background(), report.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStopped, job.State)
}

func TestSyncConfig_Defaults(t *testing.T) {
	cfg := SyncConfig{BatchSize: 50}.withDefaults(memindex.NewIndexer(10))

	assert.Equal(t, 10, cfg.BatchSize, "batch size is clamped to the indexer limit")
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	require.NotNil(t, cfg.FailureThreshold)
	assert.InDelta(t, DefaultFailureThreshold, *cfg.FailureThreshold, 1e-9)
	assert.Equal(t, "jira-q-sync/memory", cfg.LeaseName)
}

type failingPrincipalStore struct{ calls atomic.Int32 }

func (s *failingPrincipalStore) PutGroup(_ context.Context, _ domain.GroupMembership) error {
	s.calls.Add(1)
	return errors.New("user store unavailable")
}

func TestSyncOrchestrator_Run_PublishesGroupMemberships(t *testing.T) {
	issues := append(makeIssues("ENG", 3), makeIssues("HR", 1)...)
	f := newSyncFixture(issues)
	o := f.orchestrator()
	o.SetPrincipalStore(f.indexer)

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, 3, report.GroupsPublished)
	assert.Equal(t, 0, report.GroupErrors)
	assert.Equal(t, []string{"devs", "jira-project-ENG", "qa"}, f.indexer.Groups())

	eng, ok := f.indexer.Group("jira-project-ENG")
	require.True(t, ok)
	assert.Contains(t, eng.Users, domain.User("alice@x.io", "Alice"))
	assert.Equal(t, []string{"devs", "qa"}, eng.Groups)
}

func TestSyncOrchestrator_Run_GroupPublishFailuresNotFatal(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 2))
	store := &failingPrincipalStore{}
	o := f.orchestrator()
	o.SetPrincipalStore(store)

	report, err := o.Run(context.Background(), driving.SyncOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, report.State)
	assert.Equal(t, 3, report.GroupErrors)
	assert.Equal(t, 0, report.GroupsPublished)
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestSyncOrchestrator_Run_DryRunPublishesNoGroups(t *testing.T) {
	f := newSyncFixture(makeIssues("ENG", 2))
	o := f.orchestrator()
	o.SetPrincipalStore(f.indexer)

	report, err := o.Run(context.Background(), driving.SyncOptions{DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 0, report.GroupsPublished)
	assert.Empty(t, f.indexer.Groups())
}
