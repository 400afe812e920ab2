package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	mu        sync.Mutex
	status    models.Status
	ingestErr error
	askErr    error
	answer    service.Answer
	tokens    []string
	ingested  []string
	questions []string
	cleared   int
	collector *metrics.Collector
}

func (p *fakePipeline) IngestWithProgress(_ context.Context, rawURL string, observe service.StageObserver) (models.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingested = append(p.ingested, rawURL)
	if p.ingestErr != nil {
		return models.Status{}, p.ingestErr
	}
	if observe != nil {
		for _, s := range []service.Stage{service.StageFetched, service.StageChunked, service.StageIndexed, service.StageReady} {
			observe(s)
		}
	}
	p.status = models.Status{Active: true, VideoID: "dQw4w9WgXcQ", SessionID: "sess-1", SourceURL: rawURL, Chunks: 3}
	return p.status, nil
}

func (p *fakePipeline) AskWithSources(_ context.Context, question string) (service.Answer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, question)
	if p.askErr != nil {
		return service.Answer{}, p.askErr
	}
	return p.answer, nil
}

func (p *fakePipeline) AskStream(ctx context.Context, question string, onToken func(string) error) (service.Answer, error) {
	p.mu.Lock()
	tokens, err, answer := p.tokens, p.askErr, p.answer
	p.questions = append(p.questions, question)
	p.mu.Unlock()

	if err != nil {
		return service.Answer{}, err
	}
	for _, tok := range tokens {
		if err := onToken(tok); err != nil {
			return service.Answer{}, err
		}
	}
	return answer, nil
}

func (p *fakePipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	p.status = models.Status{}
}

func (p *fakePipeline) Status() models.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePipeline) Metrics() *metrics.Collector {
	return p.collector
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T, p *fakePipeline) (*API, http.Handler) {
	t.Helper()
	api := NewAPI(p, APIConfig{IngestTimeout: 5 * time.Second, AskTimeout: 5 * time.Second}, discardLogger())
	t.Cleanup(api.Jobs().Wait)
	return api, api.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestAPI_Root(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "YouTube RAG API Running", body["status"])
	assert.Equal(t, APIVersion, body["version"])
	endpoints, ok := body["endpoints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "POST /youtube/ingest", endpoints["ingest"])
}

func TestAPI_Health(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestAPI_UnknownRoute(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_IngestSuccess(t *testing.T) {
	p := &fakePipeline{}
	_, h := newTestAPI(t, p)

	rec := do(t, h, http.MethodPost, "/youtube/ingest", `{"youtube_url":"https://youtu.be/dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[IngestResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Video processed successfully. You can now ask questions!", resp.Message)
	assert.Equal(t, "dQw4w9WgXcQ", resp.VideoID)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, 3, resp.Chunks)
	assert.Equal(t, []string{"https://youtu.be/dQw4w9WgXcQ"}, p.ingested)
}

func TestAPI_IngestRejectsBadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"youtube_url":`},
		{"missing url", `{}`},
		{"blank url", `{"youtube_url":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			_, h := newTestAPI(t, p)

			rec := do(t, h, http.MethodPost, "/youtube/ingest", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, models.KindInvalidInput, resp.Error.Kind)
			assert.Empty(t, p.ingested, "pipeline should not be called")
		})
	}
}

func TestAPI_IngestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind models.ErrorKind
	}{
		{"invalid url", fmt.Errorf("%w: not a video link", models.ErrInvalidInput), http.StatusBadRequest, models.KindInvalidInput},
		{"no captions", fmt.Errorf("%w: no english track", models.ErrTranscriptUnavailable), http.StatusUnprocessableEntity, models.KindTranscriptUnavailable},
		{"empty index", models.ErrIndexEmpty, http.StatusUnprocessableEntity, models.KindIndexEmpty},
		{"fetch", models.Wrap(models.ErrFetch, errors.New("status 503")), http.StatusBadGateway, models.KindFetch},
		{"embedding", models.Wrap(models.ErrEmbeddingService, errors.New("quota")), http.StatusBadGateway, models.KindEmbeddingService},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, models.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestAPI(t, &fakePipeline{ingestErr: tt.err})

			rec := do(t, h, http.MethodPost, "/youtube/ingest", `{"youtube_url":"https://youtu.be/x"}`)
			require.Equal(t, tt.wantCode, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, resp.Error.Kind)
			assert.Equal(t, tt.err.Error(), resp.Error.Message)
		})
	}
}

func TestAPI_IngestAsync(t *testing.T) {
	p := &fakePipeline{}
	api, h := newTestAPI(t, p)

	rec := do(t, h, http.MethodPost, "/youtube/ingest", `{"youtube_url":"https://youtu.be/dQw4w9WgXcQ","async":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decode[service.JobView](t, rec)
	require.NotEmpty(t, job.ID)

	api.Jobs().Wait()

	rec = do(t, h, http.MethodGet, "/youtube/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[service.JobView](t, rec)
	assert.Equal(t, service.JobStatusCompleted, got.Status)
	assert.Equal(t, service.StageReady, got.Stage)
	require.NotNil(t, got.Result)
	assert.Equal(t, "dQw4w9WgXcQ", got.Result.VideoID)

	rec = do(t, h, http.MethodGet, "/youtube/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Jobs []service.JobView `json:"jobs"`
	}](t, rec)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, job.ID, list.Jobs[0].ID)
}

func TestAPI_JobNotFound(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/youtube/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error.Message, "missing")
}

func TestAPI_AskWithoutSession(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{askErr: models.ErrNoActiveSession})

	rec := do(t, h, http.MethodPost, "/youtube/ask", `{"question":"what is it about?"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, models.KindNoActiveSession, resp.Error.Kind)
	assert.Equal(t, "No video processed yet. Please use /youtube/ingest first.", resp.Error.Message)
}

func TestAPI_Ask(t *testing.T) {
	sources := []models.ScoredChunk{{Chunk: models.Chunk{Content: "vectors are lists", Position: 0, End: 17}, Score: 0.9}}
	p := &fakePipeline{answer: service.Answer{Text: "It covers vector databases.", Sources: sources}}
	_, h := newTestAPI(t, p)

	t.Run("answer only", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/youtube/ask", `{"question":"topic?"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[AskResponse](t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, "It covers vector databases.", resp.Answer)
		assert.Empty(t, resp.Sources)
		assert.NotContains(t, rec.Body.String(), "sources")
	})

	t.Run("with sources", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/youtube/ask", `{"question":"topic?","include_sources":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[AskResponse](t, rec)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "vectors are lists", resp.Sources[0].Content)
	})
}

func TestAPI_AskGenerationFailure(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{askErr: models.Wrap(models.ErrGeneration, errors.New("model down"))})

	rec := do(t, h, http.MethodPost, "/youtube/ask", `{"question":"topic?"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, models.KindGeneration, decode[ErrorResponse](t, rec).Error.Kind)
}

func TestAPI_ClearAndStatus(t *testing.T) {
	p := &fakePipeline{}
	_, h := newTestAPI(t, p)

	rec := do(t, h, http.MethodGet, "/youtube/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusResponse](t, rec)
	assert.False(t, st.VideoLoaded)
	assert.Equal(t, "None", st.CurrentVideo)

	do(t, h, http.MethodPost, "/youtube/ingest", `{"youtube_url":"https://youtu.be/dQw4w9WgXcQ"}`)

	st = decode[StatusResponse](t, do(t, h, http.MethodGet, "/youtube/status", ""))
	assert.True(t, st.VideoLoaded)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", st.CurrentVideo)
	assert.Equal(t, "sess-1", st.SessionID)
	assert.Equal(t, 3, st.Chunks)

	rec = do(t, h, http.MethodDelete, "/youtube/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decode[ClearResponse](t, rec)
	assert.Equal(t, ClearResponse{Status: "success", Message: "RAG chain cleared"}, cleared)
	assert.Equal(t, 1, p.cleared)

	st = decode[StatusResponse](t, do(t, h, http.MethodGet, "/youtube/status", ""))
	assert.False(t, st.VideoLoaded)

	// Clearing with nothing loaded still succeeds.
	rec = do(t, h, http.MethodDelete, "/youtube/clear", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/youtube/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_Metrics(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpEmbedding, 20*time.Millisecond)
	_, h := newTestAPI(t, &fakePipeline{collector: c})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "embedding")
}

func TestAPI_MetricsWithoutCollector(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodOptions, "/youtube/ask", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestMiddleware_RequestID(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind models.ErrorKind
		want int
	}{
		{models.KindInvalidInput, http.StatusBadRequest},
		{models.KindNoActiveSession, http.StatusBadRequest},
		{models.KindTranscriptUnavailable, http.StatusUnprocessableEntity},
		{models.KindIndexEmpty, http.StatusUnprocessableEntity},
		{models.KindFetch, http.StatusBadGateway},
		{models.KindEmbeddingService, http.StatusBadGateway},
		{models.KindGeneration, http.StatusBadGateway},
		{models.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.kind))
		})
	}
}

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/youtube/ask/stream"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		frames = append(frames, msg)
		if msg.Type == "done" || msg.Type == "error" {
			return frames
		}
	}
}

func TestAPI_AskStream(t *testing.T) {
	p := &fakePipeline{
		tokens: []string{"It ", "covers ", "vectors."},
		answer: service.Answer{
			Text:    "It covers vectors.",
			Sources: []models.ScoredChunk{{Chunk: models.Chunk{Content: "vectors"}, Score: 1}},
		},
	}
	_, h := newTestAPI(t, p)
	conn := dialStream(t, h)

	require.NoError(t, conn.WriteJSON(AskRequest{Question: "topic?", IncludeSources: true}))
	frames := readFrames(t, conn)

	require.Len(t, frames, 4)
	var streamed strings.Builder
	for _, f := range frames[:3] {
		assert.Equal(t, "token", f.Type)
		streamed.WriteString(f.Content)
	}
	assert.Equal(t, "It covers vectors.", streamed.String())

	done := frames[3]
	assert.Equal(t, "done", done.Type)
	assert.Equal(t, "It covers vectors.", done.Answer)
	require.Len(t, done.Sources, 1)

	// The connection stays open for follow-up questions.
	require.NoError(t, conn.WriteJSON(AskRequest{Question: "again?"}))
	frames = readFrames(t, conn)
	assert.Equal(t, "done", frames[len(frames)-1].Type)
	assert.Empty(t, frames[len(frames)-1].Sources)
}

func TestAPI_AskStreamError(t *testing.T) {
	_, h := newTestAPI(t, &fakePipeline{askErr: models.ErrNoActiveSession})
	conn := dialStream(t, h)

	require.NoError(t, conn.WriteJSON(AskRequest{Question: "topic?"}))
	frames := readFrames(t, conn)

	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Error)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, models.KindNoActiveSession, frames[0].Error.Kind)
	assert.Equal(t, msgNoSession, frames[0].Error.Message)
}
