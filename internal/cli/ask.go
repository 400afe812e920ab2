package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

var (
	askSources  bool
	askNoStream bool
)

var askCmd = &cobra.Command{
	Use:   "ask <youtube-url> <question>",
	Short: "Load a video and answer one question about it",
	Long: `Load a YouTube video's English transcript and answer a question about it.

The answer is streamed as the model produces it. Use --sources to list the
transcript passages the answer was based on.

Examples:
  ytrag ask https://youtu.be/dQw4w9WgXcQ "What is the song about?"
  ytrag ask "https://www.youtube.com/watch?v=dQw4w9WgXcQ" "Who is singing?" --sources`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askSources, "sources", "s", false, "print the retrieved transcript passages")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the answer only when complete")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch, err := getOrchestrator(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := ingestWithProgress(ctx, orch, args[0], out); err != nil {
		return withHint(err)
	}

	return withHint(answerQuestion(ctx, orch, args[1], out, !askNoStream, askSources))
}

// asker is the question-answering half of the Orchestrator.
type asker interface {
	AskWithSources(ctx context.Context, question string) (service.Answer, error)
	AskStream(ctx context.Context, question string, onToken func(string) error) (service.Answer, error)
}

// answerQuestion prints the answer to question, streaming if requested.
func answerQuestion(ctx context.Context, a asker, question string, out io.Writer, stream, sources bool) error {
	var answer service.Answer
	var err error

	if stream {
		answer, err = a.AskStream(ctx, question, func(token string) error {
			_, werr := io.WriteString(out, token)
			return werr
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
	} else {
		answer, err = a.AskWithSources(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer.Text)
	}

	if sources {
		printSources(out, answer.Sources)
	}
	return nil
}

// printSources lists retrieved passages, best first.
func printSources(out io.Writer, sources []models.ScoredChunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintf(out, "\nSources:\n")
	for i, src := range sources {
		text := strings.Join(strings.Fields(src.Content), " ")
		if len(text) > 160 {
			text = text[:157] + "..."
		}
		fmt.Fprintf(out, "  [%d] chunk %d (score %.3f): %s\n", i+1, src.Position, src.Score, text)
	}
}

// withHint adds a next step to errors the user can act on.
func withHint(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, errIngestCancelled):
		return err
	case errors.Is(err, models.ErrTranscriptUnavailable):
		return fmt.Errorf("%w (the video has no English captions)", err)
	case errors.Is(err, models.ErrNoActiveSession):
		return fmt.Errorf("%w (load a video first)", err)
	case errors.Is(err, models.ErrInvalidInput):
		return fmt.Errorf("%w (expected a youtube.com or youtu.be video URL)", err)
	default:
		return err
	}
}
