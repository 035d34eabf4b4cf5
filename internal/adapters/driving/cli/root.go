// Package cli implements the jira-q-sync command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/app"
	"github.com/custodia-labs/jira-q-sync/internal/config"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// version is set from main.
var version = "dev"

var (
	configFile string
	verbose    bool
)

// newApp wires the application. Tests replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

var rootCmd = &cobra.Command{
	Use:   "jira-q-sync",
	Short: "Sync Jira issues into a managed search index",
	Long: `jira-q-sync extracts Jira issues, resolves who may browse each project,
and uploads the issues with access control lists to a managed search index.

Configuration is read from ~/.jira-q-sync/config.toml (or --config) and
environment variables such as JIRA_SERVER_URL and Q_APPLICATION_ID.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ~/.jira-q-sync/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer func() { _ = logger.Close() }()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads and validates configuration and routes logs to the
// configured file.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Log.File != "" {
		logger.SetFile(logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
	}
	return cfg, nil
}

// readConfig loads and validates the configuration.
func readConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration, applies command overrides and wires the
// application.
func openApp(cmd *cobra.Command, overrides ...func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise: %w", err)
	}
	return a, nil
}
