package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/services"
)

const defaultHistoryLimit = 10

var historyLimit = defaultHistoryLimit

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the timetable and recent runs of serve",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", defaultHistoryLimit, "number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	task, results, err := services.History(cmd.Context(), a.Schedule, historyLimit)
	if err != nil {
		return err
	}

	cmd.Println(title("Scheduled sync"))
	if task == nil {
		cmd.Println(muted("  Never scheduled; run serve to start syncing on an interval"))
		return nil
	}
	cmd.Println(field("Interval", task.Interval))
	cmd.Println(field("Last run", formatTime(task.LastRun)))
	cmd.Println(field("Last success", formatTime(task.LastSuccess)))
	cmd.Println(field("Next run", formatTime(task.NextRun)))
	if task.LastError != "" {
		cmd.Println(field("Last error", errorStyle.Render(task.LastError)))
	}

	cmd.Println()
	cmd.Println(title("Recent runs"))
	if len(results) == 0 {
		cmd.Println(list(nil))
		return nil
	}
	for _, r := range results {
		cmd.Println(describeResult(r))
	}
	return nil
}

func describeResult(r domain.TaskResult) string {
	line := fmt.Sprintf("  %s  %-10s %d processed, %d uploaded, %d unchanged, %d failed",
		formatTime(r.StartedAt), runState(r), r.Processed, r.Uploaded, r.Skipped, r.Failed)
	if r.Error != "" {
		line += "\n    " + errorStyle.Render(r.Error)
	}
	return line
}

func runState(r domain.TaskResult) string {
	state := string(r.State)
	if state == "" {
		state = "unknown"
	}
	if r.Success {
		return successStyle.Render(state)
	}
	return errorStyle.Render(state)
}
