package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/server"
	"github.com/raphaelgruber/ytrag/internal/service"
)

const transcript = "Vector databases store embeddings. They answer nearest neighbour queries quickly. " +
	"Pasta needs salted water and a good sauce."

type staticFetcher struct{ text string }

func (f staticFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.text, nil
}

// vowelEmbedder maps text to vowel counts, enough to rank passages.
type vowelEmbedder struct{}

func vowels(text string) []float32 {
	v := make([]float32, 5)
	for _, r := range strings.ToLower(text) {
		if i := strings.IndexRune("aeiou", r); i >= 0 {
			v[i]++
		}
	}
	return v
}

func (vowelEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vowels(t)
	}
	return out, nil
}

func (vowelEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vowels(text), nil
}

// wordModel streams a fixed reply word by word.
type wordModel struct{ reply string }

func (m wordModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, w := range strings.SplitAfter(m.reply, " ") {
			if err := opts.StreamingFunc(ctx, []byte(w)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m wordModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newTestServer(t *testing.T) *Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := service.NewOrchestrator(
		staticFetcher{text: transcript},
		vowelEmbedder{},
		wordModel{reply: "It is about vector databases."},
		service.Options{ChunkMaxSize: 60, ChunkOverlap: 10, RetrievalK: 2, ModelTemperature: 0.7},
		service.WithMetrics(metrics.NewCollector()),
		service.WithLogger(logger),
	)
	require.NoError(t, err)

	api := server.NewAPI(orch, server.APIConfig{IngestTimeout: 5 * time.Second, AskTimeout: 5 * time.Second}, logger)
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.Jobs().Wait()
		ts.Close()
	})

	return New(ts.URL)
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("YTRAG_SERVER_URL", "")
	t.Setenv("YTRAG_CLIENT_TIMEOUT", "")

	c := New("")
	assert.Equal(t, DefaultEndpoint, c.Endpoint())
	assert.Equal(t, 5*time.Minute, c.httpClient.Timeout)
}

func TestNew_Env(t *testing.T) {
	t.Setenv("YTRAG_SERVER_URL", "http://rag.internal:9000/")
	t.Setenv("YTRAG_CLIENT_TIMEOUT", "30s")

	c := New("")
	assert.Equal(t, "http://rag.internal:9000", c.Endpoint())
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestClient_RoundTrip(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	_, err := c.Ask(ctx, "what is this about?", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	ingested, err := c.Ingest(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", ingested.VideoID)
	assert.Positive(t, ingested.Chunks)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.VideoLoaded)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", st.CurrentVideo)

	answer, err := c.Ask(ctx, "what is this about?", true)
	require.NoError(t, err)
	assert.True(t, answer.Success)
	assert.Equal(t, "It is about vector databases.", answer.Answer)
	assert.Len(t, answer.Sources, 2)

	snap, err := c.Metrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)

	require.NoError(t, c.Clear(ctx))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.VideoLoaded)
	assert.Equal(t, "None", st.CurrentVideo)
}

func TestClient_IngestInvalidURL(t *testing.T) {
	c := newTestServer(t)

	_, err := c.Ingest(context.Background(), "https://example.com/not-youtube")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestClient_IngestAsync(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	job, err := c.IngestAsync(ctx, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	done, err := c.WaitJob(ctx, job.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, service.JobStatusCompleted, done.Status)

	jobs, err := c.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = c.Job(ctx, "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_AskStream(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	var tokens []string
	result, err := c.AskStream(ctx, "what is this about?", true, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "It is about vector databases.", result.Answer)
	assert.Equal(t, "It is about vector databases.", strings.Join(tokens, ""))
	assert.Len(t, result.Sources, 2)
}

func TestClient_AskStreamWithoutSession(t *testing.T) {
	c := newTestServer(t)

	_, err := c.AskStream(context.Background(), "anything?", false, func(string) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL).Status(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, models.KindInternal, apiErr.Kind)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
