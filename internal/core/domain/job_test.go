package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncReport_FailureRatio(t *testing.T) {
	assert.Zero(t, (&SyncReport{}).FailureRatio())

	report := SyncReport{Uploaded: 3, Failed: 1}
	assert.InDelta(t, 0.25, report.FailureRatio(), 1e-9)
}

func TestSyncReport_String(t *testing.T) {
	report := SyncReport{
		State:            RunSucceeded,
		Uploaded:         4,
		SkippedUnchanged: 2,
		Failed:           1,
		DegradedProjects: map[string]string{"OPS": "no scheme"},
	}

	assert.Equal(t, "succeeded: 4 uploaded, 2 skipped (unchanged), 1 failed, 1 degraded projects", report.String())
}
