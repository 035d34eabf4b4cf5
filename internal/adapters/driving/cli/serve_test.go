package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memindex "github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/memory"
)

func TestServeCmd_RunsAndRecordsHistory(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	ix := memindex.NewIndexer(10)
	useIndex(t, ix)

	out, err := execute(t, "--config", path, "serve", "--every", "10ms", "--runs", "2")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Serving")
	assert.Contains(t, out, "Stopped after 2 runs")
	assert.Len(t, ix.Jobs(), 2)
	assert.Len(t, ix.Uploads(), 2, "second run skips unchanged issues")

	out, err = execute(t, "--config", path, "history")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Scheduled sync")
	assert.Contains(t, out, "10ms")
	assert.Equal(t, 2, strings.Count(out, "succeeded"))
	assert.Contains(t, out, "2 processed, 2 uploaded, 0 unchanged")
	assert.Contains(t, out, "2 processed, 0 uploaded, 2 unchanged")
}

func TestServeCmd_RecordsFailedRuns(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	ix := memindex.NewIndexer(10)
	ix.FailStart(assert.AnError)
	useIndex(t, ix)

	out, err := execute(t, "--config", path, "serve", "--every", "10ms", "--runs", "1")
	require.NoError(t, err, out)

	out, err = execute(t, "--config", path, "history")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Last error")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestHistoryCmd_NeverScheduled(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)

	out, err := execute(t, "--config", path, "history")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Never scheduled")
}

func TestWatchConfig_CallsOnChange(t *testing.T) {
	original := reloadDebounce
	reloadDebounce = 10 * time.Millisecond
	t.Cleanup(func() { reloadDebounce = original })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\n"), 0o600))

	changed := make(chan struct{}, 1)
	stop, err := watchConfig(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o600))
	select {
	case <-changed:
		t.Fatal("change to another file reported")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("[sync]\nbatch_size = 5\n"), 0o600))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
}

func TestWatchConfig_MissingDirectory(t *testing.T) {
	_, err := watchConfig(filepath.Join(t.TempDir(), "missing", "config.toml"), func() {})
	assert.Error(t, err)
}
