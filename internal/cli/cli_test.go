package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

// scriptedPipeline is a chatPipeline with canned results.
type scriptedPipeline struct {
	mu        sync.Mutex
	status    models.Status
	ingestErr error
	answer    service.Answer
	tokens    []string
	questions []string
}

func (p *scriptedPipeline) IngestWithProgress(_ context.Context, rawURL string, observe service.StageObserver) (models.Status, error) {
	if p.ingestErr != nil {
		return models.Status{}, p.ingestErr
	}
	for _, s := range []service.Stage{service.StageFetched, service.StageChunked, service.StageIndexed, service.StageReady} {
		observe(s)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = models.Status{Active: true, VideoID: "dQw4w9WgXcQ", SessionID: "s-1", SourceURL: rawURL, Chunks: 5, CreatedAt: time.Now()}
	return p.status, nil
}

func (p *scriptedPipeline) AskWithSources(_ context.Context, q string) (service.Answer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, q)
	if !p.status.Active {
		return service.Answer{}, models.ErrNoActiveSession
	}
	return p.answer, nil
}

func (p *scriptedPipeline) AskStream(ctx context.Context, q string, onToken func(string) error) (service.Answer, error) {
	answer, err := p.AskWithSources(ctx, q)
	if err != nil {
		return service.Answer{}, err
	}
	for _, tok := range p.tokens {
		if err := onToken(tok); err != nil {
			return service.Answer{}, err
		}
	}
	return answer, nil
}

func (p *scriptedPipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = models.Status{}
}

func (p *scriptedPipeline) Status() models.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func newScripted() *scriptedPipeline {
	return &scriptedPipeline{
		answer: service.Answer{
			Text:    "It is a love song.",
			Sources: []models.ScoredChunk{{Chunk: models.Chunk{Content: "never gonna\n give you up", Position: 3}, Score: 0.5}},
		},
		tokens: []string{"It is ", "a love ", "song."},
	}
}

func runScript(t *testing.T, p chatPipeline, input string) string {
	t.Helper()
	var out bytes.Buffer
	s := &chatSession{
		pipeline: p,
		in:       strings.NewReader(input),
		out:      &out,
		stats:    metrics.NewCollector().Snapshot,
		stream:   true,
	}
	require.NoError(t, s.run(context.Background()))
	return out.String()
}

func TestChat_Session(t *testing.T) {
	p := newScripted()
	out := runScript(t, p, strings.Join([]string{
		"what is it about?",
		"/load https://youtu.be/dQw4w9WgXcQ",
		"what is it about?",
		"/sources",
		"who sings?",
		"/status",
		"/clear",
		"/status",
		"/quit",
		"never reached",
	}, "\n"))

	assert.Contains(t, out, "no active session (load a video first)")
	assert.Contains(t, out, "  fetched\n  chunked\n  indexed\n  ready\n")
	assert.Contains(t, out, "Loaded dQw4w9WgXcQ (5 chunks)")
	assert.Contains(t, out, "It is a love song.\n")
	assert.Contains(t, out, "Sources on.")
	assert.Contains(t, out, "[1] chunk 3 (score 0.500): never gonna give you up")
	assert.Contains(t, out, "Chunks:   5")
	assert.Contains(t, out, "Video cleared.")
	assert.Contains(t, out, "No video loaded.")

	assert.Equal(t, []string{"what is it about?", "what is it about?", "who sings?"}, p.questions)
}

func TestChat_CommandErrors(t *testing.T) {
	p := newScripted()
	p.ingestErr = fmt.Errorf("%w: no english track", models.ErrTranscriptUnavailable)

	out := runScript(t, p, "/load\n/load https://youtu.be/x\n/bogus\n/help\n/stats\n")

	assert.Contains(t, out, "Usage: /load <youtube-url>")
	assert.Contains(t, out, "Error: transcript unavailable: no english track (the video has no English captions)")
	assert.Contains(t, out, "Unknown command /bogus")
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Pipeline Statistics")
}

func TestChat_EOFEndsSession(t *testing.T) {
	out := runScript(t, newScripted(), "")
	assert.Equal(t, "> \n", out)
}

func TestAnswerQuestion_NonStreaming(t *testing.T) {
	p := newScripted()
	p.status.Active = true

	var out bytes.Buffer
	require.NoError(t, answerQuestion(context.Background(), p, "q", &out, false, false))
	assert.Equal(t, "It is a love song.\n", out.String())
}

func TestIngestWithProgress_PlainOutput(t *testing.T) {
	var out bytes.Buffer
	st, err := ingestWithProgress(context.Background(), newScripted(), "https://youtu.be/dQw4w9WgXcQ", &out)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Chunks)
	assert.Equal(t, "  fetched\n  chunked\n  indexed\n  ready\nLoaded dQw4w9WgXcQ (5 chunks)\n", out.String())
}

func TestWithHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no captions", models.ErrTranscriptUnavailable, "transcript unavailable (the video has no English captions)"},
		{"no session", models.ErrNoActiveSession, "no active session (load a video first)"},
		{"bad url", models.ErrInvalidInput, "invalid input (expected a youtube.com or youtu.be video URL)"},
		{"cancelled", errIngestCancelled, "ingest cancelled"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := withHint(tt.err)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStageFraction(t *testing.T) {
	assert.Equal(t, 0.0, stageFraction(""))
	assert.Equal(t, 0.25, stageFraction(service.StageFetched))
	assert.Equal(t, 0.5, stageFraction(service.StageChunked))
	assert.Equal(t, 0.75, stageFraction(service.StageIndexed))
	assert.Equal(t, 1.0, stageFraction(service.StageReady))
}

func TestProgressModel_LocalIngest(t *testing.T) {
	m := newProgressModel("https://youtu.be/dQw4w9WgXcQ")
	assert.Contains(t, m.renderContent(), "fetching transcript")
	assert.Contains(t, m.renderContent(), "Ctrl+C to cancel")

	next, cmd := m.Update(stageMsg(service.StageChunked))
	assert.Nil(t, cmd)
	m = next.(progressModel)
	assert.Contains(t, m.renderContent(), "embedding chunks")

	next, cmd = m.Update(finishedMsg{status: models.Status{VideoID: "dQw4w9WgXcQ", Chunks: 9}})
	require.NotNil(t, cmd)
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.Equal(t, service.StageReady, m.stage)
	view := m.renderContent()
	assert.Contains(t, view, "Ready")
	assert.Contains(t, view, "Chunks:  9")
}

func TestProgressModel_LocalFailure(t *testing.T) {
	m := newProgressModel("u")
	next, _ := m.Update(finishedMsg{err: models.ErrIndexEmpty})
	m = next.(progressModel)
	assert.ErrorIs(t, m.err, models.ErrIndexEmpty)
	assert.Contains(t, m.renderContent(), "Ingest failed")
}

func TestProgressModel_RemoteJob(t *testing.T) {
	m := newProgressModel("u")
	m.client = remoteClient()
	m.jobID = "abc12345"

	next, cmd := m.Update(jobUpdateMsg{job: &service.JobView{Status: service.JobStatusRunning, Stage: service.StageFetched}})
	require.NotNil(t, cmd, "running jobs keep polling")
	m = next.(progressModel)
	assert.Equal(t, service.StageFetched, m.stage)
	assert.Contains(t, m.renderContent(), "continue in background")

	next, _ = m.Update(jobUpdateMsg{job: &service.JobView{
		Status:    service.JobStatusFailed,
		ErrorKind: models.KindTranscriptUnavailable,
		Error:     "no english track",
	}})
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.EqualError(t, m.err, "TranscriptUnavailable: no english track")
}

func TestProgressModel_Quit(t *testing.T) {
	m := newProgressModel("u")
	m.client = remoteClient()
	m.jobID = "abc12345"

	next, cmd := m.Update(tea.KeyPressMsg{Code: 'q', Text: "q"})
	require.NotNil(t, cmd)
	m = next.(progressModel)
	assert.True(t, m.quitting)
	assert.Contains(t, m.renderContent(), "ytrag remote jobs abc12345")
}

func TestPrintStats(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpEmbedding, 40*time.Millisecond)
	c.RecordLLMUsage(metrics.OpLLMGenerate, 900*time.Millisecond, 1200, 80)

	var out bytes.Buffer
	printStats(&out, c.Snapshot())

	s := out.String()
	assert.Contains(t, s, "Embeddings:")
	assert.Contains(t, s, "LLM Generate:")
	assert.Contains(t, s, "Tokens In:  1200 total")
	assert.Contains(t, s, "Tokens Out: 80 total")
	assert.NotContains(t, s, "Transcript Fetch:")
}

func TestPrintStats_Empty(t *testing.T) {
	var out bytes.Buffer
	printStats(&out, metrics.Snapshot{})
	assert.Contains(t, out.String(), "No operations recorded yet.")
}

func TestPrintJobs(t *testing.T) {
	var out bytes.Buffer
	printJobs(&out, nil)
	assert.Equal(t, "No jobs found\n", out.String())

	done := time.Date(2026, 1, 2, 10, 0, 5, 0, time.UTC)
	out.Reset()
	job := service.JobView{
		ID:          "abc12345",
		URL:         "https://youtu.be/dQw4w9WgXcQ",
		Status:      service.JobStatusCompleted,
		Stage:       service.StageReady,
		Result:      &models.Status{VideoID: "dQw4w9WgXcQ", Chunks: 4},
		StartedAt:   done.Add(-5 * time.Second),
		CompletedAt: &done,
	}
	printJobs(&out, []service.JobView{job})
	assert.Contains(t, out.String(), "abc12345")
	assert.Contains(t, out.String(), "completed")

	out.Reset()
	printJob(&out, job)
	assert.Contains(t, out.String(), "Chunks: 4")
	assert.Contains(t, out.String(), "(5s)")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "ytrag "+Version+"\n", out.String())
}
