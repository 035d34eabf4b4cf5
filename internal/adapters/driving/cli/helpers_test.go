package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	memindex "github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/memory"
	"github.com/custodia-labs/jira-q-sync/internal/app"
	"github.com/custodia-labs/jira-q-sync/internal/config"
)

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configFile = ""
	verbose = false
	syncDryRun, syncClean, syncSince, syncProjects, syncNoCache = false, false, "", nil, false
	statusLimit = defaultStatusLimit
	serveEvery, serveClean, serveRuns = 0, false, 0
	historyLimit = defaultHistoryLimit
	cacheClearForce = false
	configInitForce = false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// fakeJira serves a two-project site: ENG grants browse to a group with
// one member and a user; OPS has no permission scheme.
type fakeJira struct {
	server   *httptest.Server
	searches atomic.Int32
	issues   string
}

const engIssues = `[
  {"id": "10001", "key": "ENG-1", "fields": {
    "summary": "Login fails", "description": "Steps to reproduce",
    "status": {"name": "Open"}, "issuetype": {"name": "Bug"},
    "project": {"key": "ENG", "name": "Engineering"},
    "created": "2024-05-01T10:00:00.000+0000", "updated": "2024-05-02T10:00:00.000+0000"}},
  {"id": "10002", "key": "ENG-2", "fields": {
    "summary": "Add SSO", "status": {"name": "Done"}, "issuetype": {"name": "Story"},
    "project": {"key": "ENG", "name": "Engineering"},
    "created": "2024-05-01T11:00:00.000+0000", "updated": "2024-05-03T10:00:00.000+0000"}}
]`

func newFakeJira(t *testing.T) *fakeJira {
	t.Helper()
	f := &fakeJira{issues: engIssues}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/serverInfo", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"version": "9.12.0", "deploymentType": "Server"}`)
	})
	mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name": "svc", "emailAddress": "svc@example.com", "displayName": "Search Bot"}`)
	})
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		f.searches.Add(1)
		var issues []json.RawMessage
		if err := json.Unmarshal([]byte(f.issues), &issues); err != nil {
			t.Errorf("fixture issues: %v", err)
			return
		}
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		startAt = min(startAt, len(issues))
		page, err := json.Marshal(issues[startAt:])
		if err != nil {
			t.Errorf("fixture page: %v", err)
			return
		}
		fmt.Fprintf(w, `{"startAt": %d, "maxResults": 100, "total": %d, "issues": %s}`, startAt, len(issues), page)
	})
	mux.HandleFunc("/rest/api/2/project/ENG/permissionscheme", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 10000, "name": "Default"}`)
	})
	mux.HandleFunc("/rest/api/2/project/OPS/permissionscheme", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errorMessages": ["No project could be found with key 'OPS'."]}`)
	})
	mux.HandleFunc("/rest/api/2/permissionscheme/10000/permission", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"permissions": [
		  {"id": 1, "permission": "BROWSE_PROJECTS", "holder": {"type": "group", "parameter": "eng-team"}},
		  {"id": 2, "permission": "BROWSE_PROJECTS", "holder": {"type": "user", "parameter": "dave",
		    "user": {"name": "dave", "emailAddress": "dave@example.com", "displayName": "Dave"}}}
		]}`)
	})
	mux.HandleFunc("/rest/api/2/group/member", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"startAt": 0, "maxResults": 50, "total": 1, "isLast": true, "values": [
		  {"name": "alice", "emailAddress": "alice@example.com", "displayName": "Alice", "active": true}
		]}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// writeTestConfig writes a config using memory backends and a SQLite
// cache under a temporary directory, and returns its path.
func writeTestConfig(t *testing.T, jiraURL string, extra ...string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	content := fmt.Sprintf(`
[jira]
server_url = %q
token = "pat"
requests_per_second = 1000.0
retry_delay = "1ms"

[index]
backend = "memory"

[sync]
projects = ["ENG"]
batch_size = 1
retry_interval = "1ms"

[cache]
backend = "sqlite"
data_dir = %q
`, jiraURL, filepath.Join(dir, "data"))
	content += strings.Join(extra, "\n")

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// useIndex makes every wired app share ix.
func useIndex(t *testing.T, ix *memindex.Indexer) {
	t.Helper()
	original := newApp
	newApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		return app.New(ctx, cfg, app.Options{Index: ix})
	}
	t.Cleanup(func() { newApp = original })
}
