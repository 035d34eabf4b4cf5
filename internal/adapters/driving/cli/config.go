package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/jira-q-sync/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Sets a value in the configuration file. Keys use dot notation, for
example jira.server_url or sync.batch_size. Lists are comma separated.
Custom fields are set as sync.custom_fields.<field id> = <display name>.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration file with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// openConfigStore opens --config, or config.toml in the default directory.
func openConfigStore() (*file.ConfigStore, error) {
	if configFile != "" {
		return file.NewConfigStoreAt(configFile)
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return nil, err
	}
	return file.NewConfigStoreAt(filepath.Join(dir, "config.toml"))
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	store, err := openConfigStore()
	if err != nil {
		return err
	}
	if _, err := os.Stat(store.Path()); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", store.Path())
	}

	for key, value := range config.Defaults() {
		if err := store.Set(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	cmd.Println(ok("Wrote " + store.Path()))
	cmd.Println(muted("Set jira.server_url, credentials and the aws.* ids, then run: jira-q-sync doctor"))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	like, known := config.DefaultFor(key)
	if !known {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	store, err := openConfigStore()
	if err != nil {
		return err
	}

	value, err := file.ParseValue(raw, like)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := store.Set(key, value); err != nil {
		return err
	}

	shown := raw
	if config.IsSecretKey(key) {
		shown = "********"
	}
	cmd.Println(ok(key + " = " + shown))
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	store, err := openConfigStore()
	if err != nil {
		return err
	}
	if _, ok := store.Get(args[0]); !ok {
		return errors.New("key " + args[0] + " is not set")
	}
	if err := store.Unset(args[0]); err != nil {
		return err
	}
	cmd.Println(ok("Removed " + args[0]))
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := openConfigStore()
	if err != nil {
		return err
	}

	cmd.Println(title(store.Path()))
	keys := store.Keys()
	if len(keys) == 0 {
		cmd.Println(muted("(empty; run jira-q-sync config init)"))
		return nil
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, _ := store.Get(key)
		if config.IsSecretKey(key) && value != "" {
			value = "********"
		}
		cmd.Printf("%s = %v\n", key, value)
	}
	return nil
}
