package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// defaultStatusLimit is how many recent jobs status lists.
const defaultStatusLimit = 5

var statusLimit = defaultStatusLimit

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show the state of index sync jobs",
	Long: `Shows one sync job by execution id, or the most recent jobs of the
configured index when no id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", defaultStatusLimit, "number of recent jobs to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		jobs, err := a.Index.RecentJobs(cmd.Context(), statusLimit)
		if err != nil {
			return err
		}
		cmd.Println(title("Recent jobs") + muted(" on "+a.Index.Name()))
		if len(jobs) == 0 {
			cmd.Println(list(nil))
			return nil
		}
		for _, job := range jobs {
			cmd.Println(fmt.Sprintf("  %-38s %-12s %s", job.ExecutionID, jobState(job.State), formatTime(job.StartedAt)))
		}
		return nil
	}

	job, err := a.Orchestrator.JobStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	cmd.Println(title("Job " + job.ExecutionID))
	cmd.Println(field("Index", a.Index.Name()))
	cmd.Println(field("State", jobState(job.State)))
	if !job.StartedAt.IsZero() {
		cmd.Println(field("Started", formatTime(job.StartedAt)))
	}
	if !job.EndedAt.IsZero() {
		cmd.Println(field("Ended", formatTime(job.EndedAt)))
	}
	if job.Error != "" {
		cmd.Println(field("Error", job.Error))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func jobState(s domain.JobState) string {
	switch s {
	case domain.JobCompleted:
		return successStyle.Render(string(s))
	case domain.JobFailed:
		return errorStyle.Render(string(s))
	case domain.JobStopped:
		return warningStyle.Render(string(s))
	default:
		return string(s)
	}
}
