package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/client"
)

var (
	remoteServer string

	remoteAsync   bool
	remoteWait    bool
	remoteSources bool
	remoteStream  bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a running ytrag-server",
	Long: `Commands that drive a ytrag-server over HTTP instead of running the
pipeline locally. The server URL comes from --server, YTRAG_SERVER_URL, or
defaults to http://localhost:8000.`,
}

var remoteIngestCmd = &cobra.Command{
	Use:   "ingest <youtube-url>",
	Short: "Load a video on the server",
	Long: `Load a video on the server, replacing the one currently loaded.

With --async the server indexes in the background and the command returns a
job ID at once. Add --wait to follow the job with a progress display.

Examples:
  ytrag remote ingest https://youtu.be/dQw4w9WgXcQ
  ytrag remote ingest https://youtu.be/dQw4w9WgXcQ --async --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runRemoteIngest,
}

var remoteAskCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the server about its loaded video",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteAsk,
}

var remoteClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the server's loaded video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := remoteClient().Clear(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Video cleared.")
		return nil
	},
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's loaded video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := remoteClient().Status(context.Background())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !st.VideoLoaded {
			fmt.Fprintln(out, "No video loaded.")
			return nil
		}
		fmt.Fprintf(out, "Video:    %s\n", st.CurrentVideo)
		fmt.Fprintf(out, "Session:  %s\n", st.SessionID)
		fmt.Fprintf(out, "Chunks:   %d\n", st.Chunks)
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteServer, "server", "", "ytrag-server base URL")

	remoteIngestCmd.Flags().BoolVar(&remoteAsync, "async", false, "index in the background and return a job ID")
	remoteIngestCmd.Flags().BoolVar(&remoteWait, "wait", false, "with --async, follow the job until it finishes")

	remoteAskCmd.Flags().BoolVarP(&remoteSources, "sources", "s", false, "print the retrieved transcript passages")
	remoteAskCmd.Flags().BoolVar(&remoteStream, "stream", true, "stream the answer over a websocket")

	remoteCmd.AddCommand(remoteIngestCmd)
	remoteCmd.AddCommand(remoteAskCmd)
	remoteCmd.AddCommand(remoteClearCmd)
	remoteCmd.AddCommand(remoteStatusCmd)
	remoteCmd.AddCommand(jobsCmd)
	remoteCmd.AddCommand(usageCmd)
}

// remoteClient returns a client for the configured server.
func remoteClient() *client.Client {
	return client.New(remoteServer)
}

func runRemoteIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := remoteClient()
	out := cmd.OutOrStdout()

	if !remoteAsync {
		result, err := c.Ingest(ctx, args[0])
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintf(out, "%s\n  Video:  %s\n  Chunks: %d\n", result.Message, result.VideoID, result.Chunks)
		return nil
	}

	job, err := c.IngestAsync(ctx, args[0])
	if err != nil {
		return withHint(err)
	}

	if !remoteWait {
		fmt.Fprintf(out, "Started job %s\nUse 'ytrag remote jobs %s' to check status.\n", job.ID, job.ID)
		return nil
	}

	if isTerminal(os.Stdout) {
		return RunJobProgress(c, job)
	}

	done, err := c.WaitJob(ctx, job.ID, pollInterval)
	if err != nil {
		return err
	}
	printJob(out, *done)
	if done.Error != "" {
		return fmt.Errorf("ingest failed: %s", done.Error)
	}
	return nil
}

func runRemoteAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := remoteClient()
	out := cmd.OutOrStdout()

	if remoteStream {
		result, err := c.AskStream(ctx, args[0], remoteSources, func(token string) error {
			_, werr := fmt.Fprint(out, token)
			return werr
		})
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintln(out)
		printSources(out, result.Sources)
		return nil
	}

	result, err := c.Ask(ctx, args[0], remoteSources)
	if err != nil {
		return withHint(err)
	}
	fmt.Fprintln(out, result.Answer)
	printSources(out, result.Sources)
	return nil
}
