package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/ytrag/internal/client"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

const pollInterval = time.Second

// errIngestCancelled is returned when the user aborts a local ingest.
var errIngestCancelled = errors.New("ingest cancelled")

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// stageMsg reports a completed pipeline stage.
type stageMsg service.Stage

// finishedMsg ends a local ingest.
type finishedMsg struct {
	status models.Status
	err    error
}

// tickMsg triggers polling a remote job.
type tickMsg time.Time

// jobUpdateMsg carries the polled job.
type jobUpdateMsg struct {
	job *service.JobView
	err error
}

// stageFraction maps the last completed stage to bar progress.
func stageFraction(stage service.Stage) float64 {
	switch stage {
	case service.StageFetched:
		return 0.25
	case service.StageChunked:
		return 0.5
	case service.StageIndexed:
		return 0.75
	case service.StageReady:
		return 1
	default:
		return 0
	}
}

// stageActivity describes the work in progress after stage completed.
func stageActivity(stage service.Stage) string {
	switch stage {
	case service.StageFetched:
		return "chunking transcript"
	case service.StageChunked:
		return "embedding chunks"
	case service.StageIndexed:
		return "activating session"
	case service.StageReady:
		return "ready"
	default:
		return "fetching transcript"
	}
}

// progressModel is the bubbletea model for an ingest, local or remote.
type progressModel struct {
	url      string
	stage    service.Stage
	progress progress.Model
	theme    Theme

	// Remote jobs only
	client *client.Client
	jobID  string

	status   models.Status
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a progress model for url.
func newProgressModel(url string) progressModel {
	return progressModel{
		url: url,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init starts polling for remote jobs; local ingests push their own messages.
func (m progressModel) Init() tea.Cmd {
	if m.client != nil {
		return tea.Batch(tickCmd(), m.progress.Init())
	}
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case stageMsg:
		m.stage = service.Stage(msg)
		return m, nil

	case finishedMsg:
		m.done = true
		m.status = msg.status
		m.err = msg.err
		if msg.err == nil {
			m.stage = service.StageReady
		}
		return m, tea.Quit

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.stage = msg.job.Stage

		switch msg.job.Status {
		case service.JobStatusCompleted:
			m.done = true
			if msg.job.Result != nil {
				m.status = *msg.job.Result
			}
			return m, tea.Quit
		case service.JobStatusFailed:
			m.done = true
			m.err = fmt.Errorf("%s: %s", msg.job.ErrorKind, msg.job.Error)
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", stageActivity(m.stage)))
	bar := m.progress.ViewAs(stageFraction(m.stage))

	hint := "Press Ctrl+C to cancel"
	if m.client != nil {
		hint = "Press Ctrl+C to continue in background"
	}

	return fmt.Sprintf("%s %s\n%s\n", status, bar, m.theme.hintStyle().Render(hint))
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		if m.client != nil {
			msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'ytrag remote jobs %s' to check status.\n", m.jobID, m.jobID)
			return m.theme.hintStyle().Render(msg)
		}
		return m.theme.hintStyle().Render("\nIngest cancelled.\n")
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Ingest failed: %s\n", m.err))
	}

	output := m.theme.completedStyle().Render("✓ Ready") + "\n\n"
	output += fmt.Sprintf("  Video:   %s\n", m.status.VideoID)
	output += fmt.Sprintf("  Chunks:  %d\n", m.status.Chunks)
	return output
}

// fetchJob polls the server in a command so Update never blocks.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.Job(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ingestWithProgress ingests rawURL through p, rendering stage progress.
// Without a terminal it prints one line per stage instead.
func ingestWithProgress(ctx context.Context, p service.Ingester, rawURL string, out io.Writer) (models.Status, error) {
	if !isTerminal(out) {
		status, err := p.IngestWithProgress(ctx, rawURL, func(stage service.Stage) {
			fmt.Fprintf(out, "  %s\n", stage)
		})
		if err == nil {
			fmt.Fprintf(out, "Loaded %s (%d chunks)\n", status.VideoID, status.Chunks)
		}
		return status, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newProgressModel(rawURL))
	go func() {
		status, err := p.IngestWithProgress(ctx, rawURL, func(stage service.Stage) {
			program.Send(stageMsg(stage))
		})
		program.Send(finishedMsg{status: status, err: err})
	}()

	finalModel, err := program.Run()
	if err != nil {
		return models.Status{}, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok {
		return models.Status{}, fmt.Errorf("progress UI returned unexpected model")
	}
	if m.quitting {
		return models.Status{}, errIngestCancelled
	}
	return m.status, m.err
}

// RunJobProgress runs the interactive progress UI for a remote ingest job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(c *client.Client, job *service.JobView) error {
	model := newProgressModel(job.URL)
	model.client = c
	model.jobID = job.ID
	model.stage = job.Stage

	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// Ctrl+C leaves the job running on the server
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
