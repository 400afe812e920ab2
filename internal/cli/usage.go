package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/metrics"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show server pipeline statistics",
	Long: `Show the server's in-memory timings and token usage since it started.

Examples:
  ytrag remote usage`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	snap, err := remoteClient().Metrics(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), *snap)
	return nil
}

// printStats displays pipeline statistics.
func printStats(out io.Writer, stats metrics.Snapshot) {
	fmt.Fprintf(out, "Pipeline Statistics (in-memory, since start)\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	sections := []struct {
		title  string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"Transcript Fetch", stats.TranscriptFetch, false},
		{"Embeddings", stats.Embedding, false},
		{"Index Query", stats.IndexQuery, false},
		{"LLM Generate", stats.LLMGenerate, true},
		{"LLM Stream", stats.LLMStream, true},
	}

	printed := false
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		printed = true
		fmt.Fprintf(out, "\n%s:\n", s.title)
		printOpStats(out, s.op)
		if s.tokens {
			printTokenStats(out, s.op)
		}
	}
	if !printed {
		fmt.Fprintf(out, "\nNo operations recorded yet.\n")
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(out, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(out)
}
