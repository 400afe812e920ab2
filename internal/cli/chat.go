package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

var chatSources bool

var chatCmd = &cobra.Command{
	Use:   "chat [youtube-url]",
	Short: "Interactive question session about a video",
	Long: `Start an interactive session. Every line you type is a question about
the loaded video; lines starting with / are commands:

  /load <url>   load a different video (replaces the current one)
  /clear        discard the loaded video
  /status       show the loaded video
  /stats        show pipeline timings
  /sources      toggle printing retrieved passages
  /quit         leave

Examples:
  ytrag chat https://youtu.be/dQw4w9WgXcQ
  ytrag chat`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&chatSources, "sources", "s", false, "print the retrieved transcript passages")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch, err := getOrchestrator(ctx)
	if err != nil {
		return err
	}

	s := &chatSession{
		pipeline: orch,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		stats:    collector.Snapshot,
		stream:   true,
		sources:  chatSources,
	}

	if len(args) == 1 {
		s.load(ctx, args[0])
	}
	return s.run(ctx)
}

// chatPipeline is the Orchestrator surface the REPL drives.
type chatPipeline interface {
	service.Ingester
	asker
	Clear()
	Status() models.Status
}

// chatSession is a line-oriented REPL over a pipeline.
type chatSession struct {
	pipeline chatPipeline
	in       io.Reader
	out      io.Writer
	stats    func() metrics.Snapshot
	stream   bool
	sources  bool
}

// run reads lines until EOF, /quit or ctx cancellation.
func (s *chatSession) run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if s.handle(ctx, scanner.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle processes one input line and reports whether to quit.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.ask(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true
	case "/load":
		if arg == "" {
			fmt.Fprintln(s.out, "Usage: /load <youtube-url>")
			return false
		}
		s.load(ctx, arg)
	case "/clear":
		s.pipeline.Clear()
		fmt.Fprintln(s.out, "Video cleared.")
	case "/status":
		printStatus(s.out, s.pipeline.Status())
	case "/stats":
		if s.stats != nil {
			printStats(s.out, s.stats())
		}
	case "/sources":
		s.sources = !s.sources
		fmt.Fprintf(s.out, "Sources %s.\n", onOff(s.sources))
	case "/help":
		fmt.Fprintln(s.out, "Commands: /load <url>, /clear, /status, /stats, /sources, /quit")
	default:
		fmt.Fprintf(s.out, "Unknown command %s. Type /help for a list.\n", command)
	}
	return false
}

func (s *chatSession) load(ctx context.Context, rawURL string) {
	if _, err := ingestWithProgress(ctx, s.pipeline, rawURL, s.out); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", withHint(err))
	}
}

func (s *chatSession) ask(ctx context.Context, question string) {
	if err := answerQuestion(ctx, s.pipeline, question, s.out, s.stream, s.sources); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", withHint(err))
	}
}

// printStatus describes the active session.
func printStatus(out io.Writer, st models.Status) {
	if !st.Active {
		fmt.Fprintln(out, "No video loaded.")
		return
	}
	fmt.Fprintf(out, "Video:    %s\n", st.VideoID)
	fmt.Fprintf(out, "URL:      %s\n", st.SourceURL)
	fmt.Fprintf(out, "Session:  %s\n", st.SessionID)
	fmt.Fprintf(out, "Chunks:   %d\n", st.Chunks)
	fmt.Fprintf(out, "Loaded:   %s\n", st.CreatedAt.Format("15:04:05"))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
