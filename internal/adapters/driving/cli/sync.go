package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/jira-q-sync/internal/config"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
)

var (
	syncDryRun   bool
	syncClean    bool
	syncSince    string
	syncProjects []string
	syncNoCache  bool
)

// progressInterval is how often sync progress is printed.
var progressInterval = 500 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise Jira issues to the index",
	Long: `Runs one sync: opens an index job, extracts matching issues, resolves
project access, skips issues unchanged since their last upload and uploads
the rest in batches.

Interrupt once to stop after in-flight batches; interrupt again to abort.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "extract and assemble without touching the index")
	syncCmd.Flags().BoolVar(&syncClean, "clean", false, "delete previously synced documents before uploading")
	syncCmd.Flags().StringVar(&syncSince, "since", "",
		"only issues updated since a duration ago (24h) or a date (2024-05-01, RFC 3339)")
	syncCmd.Flags().BoolVar(&syncNoCache, "no-cache", false, "upload every issue, ignoring change detection for this run")
	syncCmd.Flags().StringSliceVarP(&syncProjects, "project", "p", nil, "project keys overriding the configured list")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	since, err := parseSince(syncSince, time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(cmd, func(cfg *config.Config) {
		if syncNoCache {
			cfg.Cache.Enabled = false
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := driving.SyncOptions{
		DryRun:   syncDryRun,
		Clean:    syncClean,
		Since:    since,
		Projects: normaliseProjects(syncProjects),
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := handleInterrupts(cmd, a.Orchestrator.Stop, cancel)
	defer stopSignals()

	switch {
	case opts.DryRun:
		cmd.Println(title("Dry run") + muted(" against "+a.Index.Name()))
	default:
		cmd.Println(title("Syncing") + muted(" to "+a.Index.Name()))
	}

	report, err := syncWithProgress(ctx, cmd, a.Orchestrator, opts)
	printReport(cmd, report)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// syncWithProgress runs sync while displaying progress updates.
func syncWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	orch driving.SyncOrchestrator,
	opts driving.SyncOptions,
) (*domain.SyncReport, error) {
	type result struct {
		report *domain.SyncReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := orch.Run(ctx, opts)
		done <- result{report, err}
	}()

	// Progress lines overwrite each other, so only draw them on a terminal.
	if !isTerminal(cmd.OutOrStdout()) {
		res := <-done
		return res.report, res.err
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	spin := newProgressSpinner()
	drawn := false
	for {
		select {
		case res := <-done:
			if drawn {
				cmd.Println()
			}
			return res.report, res.err
		case <-ticker.C:
			status := orch.Status()
			cmd.Printf("\r%s Processed %d issues (%d uploaded, %d unchanged, %d failed)",
				spin.next(), status.DocumentsProcessed, status.Uploaded, status.Skipped, status.Failed)
			drawn = true
		}
	}
}

// progressSpinner drives a spinner model outside a tea program: each
// progress tick feeds the model its own tick message.
type progressSpinner struct {
	model spinner.Model
}

func newProgressSpinner() *progressSpinner {
	return &progressSpinner{
		model: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
	}
}

// next advances one frame and renders it.
func (p *progressSpinner) next() string {
	p.model, _ = p.model.Update(p.model.Tick())
	return p.model.View()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// handleInterrupts stops the run cooperatively on the first signal and
// cancels it on the second. The returned function unregisters.
func handleInterrupts(cmd *cobra.Command, stop func(), cancel context.CancelFunc) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-signals:
				count++
				if count == 1 {
					cmd.PrintErrln("\nStopping after in-flight batches (interrupt again to abort)...")
					stop()
					continue
				}
				cancel()
				return
			case <-quit:
				return
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(quit)
	}
}

func printReport(cmd *cobra.Command, r *domain.SyncReport) {
	if r == nil {
		return
	}

	heading := "Sync " + string(r.State)
	if r.DryRun {
		heading += " (dry run)"
	}
	switch r.State {
	case domain.RunSucceeded:
		cmd.Println(ok(heading))
	case domain.RunStopped:
		cmd.Println(warn(heading))
	default:
		cmd.Println(fail(heading))
	}

	if r.ExecutionID != "" {
		cmd.Println(field("Execution ID", r.ExecutionID))
	}
	uploaded := "Uploaded"
	if r.DryRun {
		uploaded = "Would upload"
	}
	cmd.Println(field("Processed", r.Processed))
	cmd.Println(field(uploaded, r.Uploaded))
	cmd.Println(field("Skipped (unchanged)", r.SkippedUnchanged))
	cmd.Println(field("Failed", r.Failed))
	if r.Deleted > 0 {
		cmd.Println(field("Deleted", r.Deleted))
	}
	cmd.Println(field("Batches", r.Batches))
	if r.AssemblyErrors > 0 {
		cmd.Println(field("Assembly errors", r.AssemblyErrors))
	}
	if r.CacheErrors > 0 {
		cmd.Println(field("Cache errors", r.CacheErrors))
	}
	if r.GroupsPublished > 0 {
		cmd.Println(field("Groups published", r.GroupsPublished))
	}
	if r.GroupErrors > 0 {
		cmd.Println(field("Group errors", r.GroupErrors))
	}
	cmd.Println(field("Duration", r.Duration.Round(time.Millisecond)))

	if len(r.DegradedProjects) > 0 {
		keys := make([]string, 0, len(r.DegradedProjects))
		for k := range r.DegradedProjects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+r.DegradedProjects[k])
		}
		cmd.Println(warn("Degraded projects (fallback group applied):"))
		cmd.Println(list(lines))
	}

	if len(r.Failures) > 0 {
		lines := make([]string, 0, len(r.Failures))
		for _, f := range r.Failures {
			lines = append(lines, fmt.Sprintf("%s [%s] %s", f.ID, f.ErrorCode, f.ErrorMessage))
		}
		cmd.Println(fail("Failed documents:"))
		cmd.Println(list(lines))
	}
}

// sinceLayouts are the accepted absolute --since formats.
var sinceLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// parseSince accepts a duration back from now or an absolute time.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("--since duration must be positive: %s", value)
		}
		return now.Add(-d), nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--since: cannot parse %q as a duration or date", value)
}

func normaliseProjects(keys []string) []string {
	var out []string
	for _, k := range keys {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
