package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/config/file"
	memindex "github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/memory"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

func TestStatusCmd(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	ix := memindex.NewIndexer(10)
	useIndex(t, ix)

	_, err := execute(t, "--config", path, "sync")
	require.NoError(t, err)
	jobs := ix.Jobs()
	require.Len(t, jobs, 1)

	out, err := execute(t, "--config", path, "status", jobs[0].ExecutionID)

	require.NoError(t, err, out)
	assert.Contains(t, out, "Job "+jobs[0].ExecutionID)
	assert.Contains(t, out, string(domain.JobStopped))
	assert.Contains(t, out, "Ended:")
}

func TestStatusCmd_UnknownJob(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	useIndex(t, memindex.NewIndexer(10))

	_, err := execute(t, "--config", path, "status", "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusCmd_RecentJobs(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	ix := memindex.NewIndexer(10)
	useIndex(t, ix)

	out, err := execute(t, "--config", path, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(none)")

	for i := 0; i < 3; i++ {
		_, err = execute(t, "--config", path, "sync")
		require.NoError(t, err)
	}
	jobs := ix.Jobs()

	out, err = execute(t, "--config", path, "status", "--limit", "2")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Recent jobs")
	assert.Contains(t, out, jobs[2].ExecutionID)
	assert.Contains(t, out, jobs[1].ExecutionID)
	assert.NotContains(t, out, jobs[0].ExecutionID)
}

func TestStatusCmd_TooManyArgs(t *testing.T) {
	_, err := execute(t, "status", "a", "b")
	assert.Error(t, err)
}

func TestCacheCmd_StatsAndClear(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	useIndex(t, memindex.NewIndexer(10))

	_, err := execute(t, "--config", path, "sync")
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "cache", "stats")
	require.NoError(t, err, out)
	assert.Contains(t, out, "sqlite")
	assert.Regexp(t, `Entries:\s+2`, out)
	assert.Regexp(t, `Succeeded:\s+2`, out)

	_, err = execute(t, "--config", path, "cache", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, err = execute(t, "--config", path, "cache", "clear", "--force")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Removed 2 entries")

	out, err = execute(t, "--config", path, "cache", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Entries:\s+0`, out)
}

func TestCacheCmd_Disabled(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL, "enabled = false")
	useIndex(t, memindex.NewIndexer(10))

	out, err := execute(t, "--config", path, "cache", "stats")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Change detection is disabled")
}

func TestAccessCmd(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	useIndex(t, memindex.NewIndexer(10))

	out, err := execute(t, "--config", path, "access", "eng", "OPS")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Project ENG")
	assert.Contains(t, out, "Users (2):")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "dave@example.com")
	assert.Contains(t, out, "Groups (1):")
	assert.Contains(t, out, "eng-team")

	assert.Contains(t, out, "Project OPS")
	assert.Contains(t, out, "Degraded:")
	assert.Contains(t, out, "jira-project-OPS")
}

func TestDoctorCmd_AllChecksPass(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	useIndex(t, memindex.NewIndexer(10))

	out, err := execute(t, "--config", path, "doctor")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Configuration loaded from "+path)
	assert.Contains(t, out, "Jira server: 9.12.0 (Server)")
	assert.Contains(t, out, "authenticated as svc@example.com")
	assert.Contains(t, out, "memory reachable")
	assert.Contains(t, out, "sqlite, 0 entries")
}

func TestDoctorCmd_ReportsFailures(t *testing.T) {
	jira := newFakeJira(t)
	path := writeTestConfig(t, jira.server.URL)
	jira.server.Close()
	useIndex(t, memindex.NewIndexer(10))

	out, err := execute(t, "--config", path, "doctor")

	require.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "✗ Jira server")
	assert.Contains(t, out, "✗ Jira credentials")
	assert.Contains(t, out, "✓ Index memory")
}

func TestDoctorCmd_InvalidConfig(t *testing.T) {
	path := writeTestConfig(t, "")

	out, err := execute(t, "--config", path, "doctor")

	require.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "✗ Configuration")
}

func TestConfigCmd_InitSetShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Wrote "+path)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", path, "config", "set", "sync.batch_size", "5")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "sync.projects", "ENG, OPS")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "cache.retention", "48h")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "sync.custom_fields.customfield_10010", "Team")
	require.NoError(t, err)
	out, err = execute(t, "--config", path, "config", "set", "jira.token", "pat-secret")
	require.NoError(t, err)
	assert.NotContains(t, out, "pat-secret")

	store, err := file.NewConfigStoreAt(path)
	require.NoError(t, err)
	assert.Equal(t, 5, store.GetInt("sync.batch_size"))
	assert.Equal(t, []string{"ENG", "OPS"}, store.GetStringSlice("sync.projects"))
	assert.Equal(t, "48h", store.GetString("cache.retention"))
	assert.Equal(t, "Team", store.GetString("sync.custom_fields.customfield_10010"))

	out, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "sync.batch_size = 5")
	assert.Contains(t, out, "jira.token = ********")
	assert.NotContains(t, out, "pat-secret")

	_, err = execute(t, "--config", path, "config", "unset", "jira.token")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "unset", "jira.token")
	assert.Error(t, err)
}

func TestConfigCmd_SetValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := execute(t, "--config", path, "config", "set", "jira.colour", "blue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration key")

	_, err = execute(t, "--config", path, "config", "set", "sync.batch_size", "ten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected an integer")

	_, err = execute(t, "--config", path, "config", "set", "sync.lease_ttl", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a duration")
}

func TestConfigCmd_InitThenLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[jira]")
	assert.Contains(t, string(data), "[sync]")

	// The written defaults fail validation only on the missing site.
	_, err = execute(t, "--config", path, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira.server_url")
}
