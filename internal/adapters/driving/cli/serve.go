package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/config"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

var (
	serveEvery time.Duration
	serveClean bool
	serveRuns  int
)

// reloadDebounce collapses the burst of events an editor save produces.
var reloadDebounce = 250 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync on an interval until interrupted",
	Long: `Runs the sync now and then again every interval, recording each run in the
sync history. A restarted serve resumes the previous timetable.

When configuration is read from a file, changes to that file are picked up
after the current run finishes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveEvery, "every", 0, "time between runs (default schedule.interval)")
	serveCmd.Flags().BoolVar(&serveClean, "clean", false, "remove documents for deleted issues on every run")
	serveCmd.Flags().IntVar(&serveRuns, "runs", 0, "stop after this many runs (0 runs until interrupted)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	for {
		reload, err := serveOnce(ctx, cmd, cancel)
		if err != nil || !reload {
			return err
		}
		cmd.Println(muted("Configuration changed, reloading"))
	}
}

// serveOnce runs the scheduler until it stops. It reports whether it
// stopped because the configuration file changed.
func serveOnce(ctx context.Context, cmd *cobra.Command, cancel context.CancelFunc) (bool, error) {
	a, err := openApp(cmd, func(cfg *config.Config) {
		if serveEvery > 0 {
			cfg.Schedule.Interval = serveEvery
		}
		if serveClean {
			cfg.Schedule.Clean = true
		}
	})
	if err != nil {
		return false, err
	}
	defer a.Close()

	scheduler := a.Scheduler(serveRuns)

	var reloaded atomic.Bool
	if a.Config.File != "" {
		stopWatch, err := watchConfig(a.Config.File, func() {
			if _, err := readConfig(); err != nil {
				logger.Warn("Ignoring configuration change: %v", err)
				return
			}
			reloaded.Store(true)
			go func() { _ = scheduler.Stop() }()
		})
		if err != nil {
			return false, err
		}
		defer stopWatch()
	}

	stopSignals := handleInterrupts(cmd, func() {
		a.Orchestrator.Stop()
		go func() { _ = scheduler.Stop() }()
	}, cancel)
	defer stopSignals()

	cmd.Println(title("Serving") + muted(fmt.Sprintf(" to %s every %s", a.Index.Name(), a.Config.Schedule.Interval)))
	if err := scheduler.Start(ctx); err != nil {
		return false, fmt.Errorf("scheduler: %w", err)
	}
	cmd.Println(muted("Stopped after " + plural(scheduler.Runs(), "run", "runs")))
	return reloaded.Load(), nil
}

// watchConfig calls onChange after the file at path is written, created or
// replaced. The directory is watched because editors replace files on save.
func watchConfig(path string, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch configuration: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch configuration: %w", err)
	}

	name := filepath.Clean(path)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var debounce <-chan time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					debounce = time.After(reloadDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watching configuration: %v", err)
			case <-debounce:
				debounce = nil
				onChange()
			}
		}
	}()

	return func() {
		_ = watcher.Close()
		<-done
	}, nil
}
