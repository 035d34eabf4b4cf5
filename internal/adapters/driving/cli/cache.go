package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var cacheClearForce bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the change-detection cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	Long: `Removes every cache entry so the next sync uploads all issues.
Documents already in the index are not touched.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&cacheClearForce, "force", "f", false, "confirm clearing the cache")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Cache.Stats(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Println(title("Change-detection cache"))
	cmd.Println(field("Backend", stats.Backend))
	if !a.Cache.Enabled() {
		cmd.Println(warn("Change detection is disabled; every issue is uploaded"))
	}
	cmd.Println(field("Entries", stats.EntryCount))
	cmd.Println(field("Succeeded", stats.Succeeded))
	cmd.Println(field("Failed", stats.Failed))
	cmd.Println(field("Expired", stats.Expired))
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	if !cacheClearForce {
		return errors.New("refusing to clear the cache without --force")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Cache.Clear(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Println(ok("Removed " + plural(n, "entry", "entries")))
	return nil
}
