package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "jira-issue-ENG-42", DocumentID("ENG-42"))
}

func TestAttributeValue_Text(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, "Open", StringAttr("jira_status", "Open").Value.Text())
	assert.Equal(t, "7", LongAttr("jira_comment_count", 7).Value.Text())
	assert.Equal(t, "[a b]", StringListAttr("jira_labels", []string{"a", "b"}).Value.Text())
	assert.Equal(t, "2024-03-01T11:00:00Z", DateAttr("_created_at", ts).Value.Text())
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()

	assert.False(t, CacheEntry{}.Expired(now))
	assert.False(t, CacheEntry{ExpiresAt: now.Add(time.Hour)}.Expired(now))
	assert.True(t, CacheEntry{ExpiresAt: now}.Expired(now))
}

func TestIssuePage_Last(t *testing.T) {
	assert.True(t, IssuePage{}.Last())
	assert.False(t, IssuePage{Issues: make([]Issue, 100), StartAt: 0, Total: 250}.Last())
	assert.True(t, IssuePage{Issues: make([]Issue, 50), StartAt: 200, Total: 250}.Last())
}

func TestSyncReport_FailureRatio(t *testing.T) {
	r := &SyncReport{}
	assert.Zero(t, r.FailureRatio())

	r = &SyncReport{Uploaded: 9, Failed: 1, SkippedUnchanged: 100}
	assert.InDelta(t, 0.1, r.FailureRatio(), 1e-9)
}

func TestJobState_Outstanding(t *testing.T) {
	assert.True(t, JobStarted.Outstanding())
	assert.True(t, JobInProgress.Outstanding())
	assert.False(t, JobCompleted.Outstanding())
	assert.False(t, JobStopped.Outstanding())
	assert.True(t, RunStopped.Terminal())
	assert.False(t, RunUploading.Terminal())
}
