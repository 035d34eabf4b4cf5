package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/app"
	"github.com/custodia-labs/jira-q-sync/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and connectivity",
	Long: `Validates the configuration, then checks that Jira accepts the
configured credentials, that the index backend is reachable and that the
cache can be read.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// errChecksFailed is returned when any doctor check fails.
var errChecksFailed = errors.New("one or more checks failed")

func runDoctor(cmd *cobra.Command, _ []string) error {
	cmd.Println(title("jira-q-sync doctor"))

	cfg, err := loadConfig()
	if err != nil {
		cmd.Println(fail("Configuration: " + err.Error()))
		return errChecksFailed
	}
	source := cfg.File
	if source == "" {
		source = "environment and defaults"
	}
	cmd.Println(ok("Configuration loaded from " + source))

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		cmd.Println(fail("Initialise: " + err.Error()))
		return errChecksFailed
	}
	defer a.Close()

	passed := true
	for _, check := range doctorChecks(cfg) {
		detail, err := check.run(cmd.Context(), a)
		if err != nil {
			passed = false
			cmd.Println(fail(check.name + ": " + err.Error()))
			continue
		}
		cmd.Println(ok(check.name + ": " + detail))
	}

	if !passed {
		return errChecksFailed
	}
	return nil
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context, a *app.App) (string, error)
}

func doctorChecks(cfg *config.Config) []doctorCheck {
	return []doctorCheck{
		{"Jira server", func(ctx context.Context, a *app.App) (string, error) {
			info, err := a.Jira.ServerInfo(ctx)
			if err != nil {
				return "", err
			}
			detail := info.Version
			if info.DeploymentType != "" {
				detail += " (" + info.DeploymentType + ")"
			}
			return detail, nil
		}},
		{"Jira credentials", func(ctx context.Context, a *app.App) (string, error) {
			me, err := a.Jira.Myself(ctx)
			if err != nil {
				return "", err
			}
			return "authenticated as " + me.ID, nil
		}},
		{"Index " + cfg.Index.Backend, func(ctx context.Context, a *app.App) (string, error) {
			if err := a.Index.Ping(ctx); err != nil {
				return "", err
			}
			return a.Index.Name() + " reachable", nil
		}},
		{"Cache " + cfg.Cache.Backend, func(ctx context.Context, a *app.App) (string, error) {
			stats, err := a.Cache.Stats(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %s", stats.Backend, plural(stats.EntryCount, "entry", "entries")), nil
		}},
	}
}
