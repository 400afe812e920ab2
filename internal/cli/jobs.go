package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/service"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect background ingests",
	Long: `List all background ingests on the server or inspect one by ID.

Examples:
  ytrag remote jobs           # List all jobs
  ytrag remote jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		job, err := remoteClient().Job(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		printJob(out, *job)
		return nil
	}

	jobs, err := remoteClient().Jobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	printJobs(out, jobs)
	return nil
}

func printJobs(out io.Writer, jobs []service.JobView) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	fmt.Fprintf(out, "%-10s %-10s %-10s %-10s %s\n", "ID", "STATUS", "STAGE", "STARTED", "URL")
	fmt.Fprintln(out, "------------------------------------------------------------------------")

	for _, job := range jobs {
		stage := string(job.Stage)
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(out, "%-10s %-10s %-10s %-10s %s\n", job.ID, job.Status, stage, job.StartedAt.Format("15:04:05"), job.URL)
	}
}

func printJob(out io.Writer, job service.JobView) {
	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  URL: %s\n", job.URL)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	if job.Stage != "" {
		fmt.Fprintf(out, "  Stage: %s\n", job.Stage)
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s (%s)\n", job.CompletedAt.Format(time.RFC3339), job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.Result != nil {
		fmt.Fprintf(out, "  Video: %s\n", job.Result.VideoID)
		fmt.Fprintf(out, "  Chunks: %d\n", job.Result.Chunks)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s: %s\n", job.ErrorKind, job.Error)
	}
}
