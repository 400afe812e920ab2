package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

// APIVersion is reported by GET /.
const APIVersion = "1.0"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Response messages kept stable for existing clients.
const (
	msgIngested  = "Video processed successfully. You can now ask questions!"
	msgCleared   = "RAG chain cleared"
	msgNoSession = "No video processed yet. Please use /youtube/ingest first."
	noVideo      = "None"
)

// Pipeline is the part of the Orchestrator the HTTP API drives.
type Pipeline interface {
	IngestWithProgress(ctx context.Context, rawURL string, observe service.StageObserver) (models.Status, error)
	AskWithSources(ctx context.Context, question string) (service.Answer, error)
	AskStream(ctx context.Context, question string, onToken func(string) error) (service.Answer, error)
	Clear()
	Status() models.Status
	Metrics() *metrics.Collector
}

// APIConfig holds per-request limits for the HTTP API.
type APIConfig struct {
	IngestTimeout time.Duration
	AskTimeout    time.Duration
}

// API serves the JSON HTTP interface over a Pipeline.
type API struct {
	pipeline Pipeline
	jobs     *service.JobManager
	cfg      APIConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates the HTTP API. Background ingests share the pipeline and
// run under cfg.IngestTimeout.
func NewAPI(pipeline Pipeline, cfg APIConfig, logger *slog.Logger) *API {
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 120 * time.Second
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = 60 * time.Second
	}
	return &API{
		pipeline: pipeline,
		jobs:     service.NewJobManager(pipeline, cfg.IngestTimeout, 0),
		cfg:      cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is open on every route
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Jobs returns the background ingest manager.
func (a *API) Jobs() *service.JobManager {
	return a.jobs
}

// Handler returns the routed handler wrapped in request ID, logging and CORS middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /metrics", a.handleMetrics)

	mux.HandleFunc("POST /youtube/ingest", a.handleIngest)
	mux.HandleFunc("GET /youtube/jobs", a.handleListJobs)
	mux.HandleFunc("GET /youtube/jobs/{id}", a.handleGetJob)
	mux.HandleFunc("POST /youtube/ask", a.handleAsk)
	mux.HandleFunc("GET /youtube/ask/stream", a.handleAskStream)
	mux.HandleFunc("DELETE /youtube/clear", a.handleClear)
	mux.HandleFunc("GET /youtube/status", a.handleStatus)

	return RequestID(AccessLog(a.logger)(CORS(mux)))
}

// IngestRequest is the body of POST /youtube/ingest.
type IngestRequest struct {
	YoutubeURL string `json:"youtube_url"`
	Async      bool   `json:"async,omitempty"`
}

// IngestResponse reports a completed synchronous ingest.
type IngestResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	VideoID   string `json:"video_id"`
	SessionID string `json:"session_id"`
	Chunks    int    `json:"chunks"`
}

// AskRequest is the body of POST /youtube/ask and of each websocket message.
type AskRequest struct {
	Question       string `json:"question"`
	IncludeSources bool   `json:"include_sources,omitempty"`
}

// AskResponse carries a generated answer.
type AskResponse struct {
	Answer  string               `json:"answer"`
	Success bool                 `json:"success"`
	Sources []models.ScoredChunk `json:"sources,omitempty"`
}

// ClearResponse confirms the session was discarded.
type ClearResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse describes the active session.
type StatusResponse struct {
	VideoLoaded  bool   `json:"video_loaded"`
	CurrentVideo string `json:"current_video"`
	VideoID      string `json:"video_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Chunks       int    `json:"chunks"`
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StreamMessage is one frame sent on /youtube/ask/stream.
// Type is "token", "done" or "error".
type StreamMessage struct {
	Type    string               `json:"type"`
	Content string               `json:"content,omitempty"`
	Answer  string               `json:"answer,omitempty"`
	Sources []models.ScoredChunk `json:"sources,omitempty"`
	Error   *ErrorBody           `json:"error,omitempty"`
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "YouTube RAG API Running",
		"version": APIVersion,
		"endpoints": map[string]string{
			"ingest": "POST /youtube/ingest",
			"ask":    "POST /youtube/ask",
			"stream": "GET /youtube/ask/stream",
			"clear":  "DELETE /youtube/clear",
			"status": "GET /youtube/status",
			"jobs":   "GET /youtube/jobs",
		},
	})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.pipeline.Metrics().Snapshot())
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.YoutubeURL) == "" {
		a.writeError(w, r, fmt.Errorf("%w: youtube_url is required", models.ErrInvalidInput))
		return
	}

	if req.Async {
		writeJSON(w, http.StatusAccepted, a.jobs.Start(req.YoutubeURL))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.IngestTimeout)
	defer cancel()

	st, err := a.pipeline.IngestWithProgress(ctx, req.YoutubeURL, nil)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		Status:    "success",
		Message:   msgIngested,
		VideoID:   st.VideoID,
		SessionID: st.SessionID,
		Chunks:    st.Chunks,
	})
}

func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": a.jobs.List()})
}

func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := a.jobs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorBody{
			Kind:    models.KindInvalidInput,
			Message: fmt.Sprintf("job not found: %s", id),
		}})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.AskTimeout)
	defer cancel()

	answer, err := a.pipeline.AskWithSources(ctx, req.Question)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := AskResponse{Answer: answer.Text, Success: true}
	if req.IncludeSources {
		resp.Sources = answer.Sources
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAskStream upgrades to a websocket and answers one question per
// incoming AskRequest frame until the client closes the connection.
func (a *API) handleAskStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req AskRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		if err := a.streamAnswer(r.Context(), conn, req); err != nil {
			a.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// streamAnswer writes token frames followed by one done or error frame.
// A non-nil return means the connection is unusable.
func (a *API) streamAnswer(parent context.Context, conn *websocket.Conn, req AskRequest) error {
	ctx, cancel := context.WithTimeout(parent, a.cfg.AskTimeout)
	defer cancel()

	answer, err := a.pipeline.AskStream(ctx, req.Question, func(token string) error {
		return conn.WriteJSON(StreamMessage{Type: "token", Content: token})
	})
	if err != nil {
		kind := models.KindOf(err)
		a.logger.Warn("streamed ask failed", "kind", kind, "error", err)
		return conn.WriteJSON(StreamMessage{Type: "error", Error: &ErrorBody{Kind: kind, Message: errorMessage(err)}})
	}

	done := StreamMessage{Type: "done", Answer: answer.Text}
	if req.IncludeSources {
		done.Sources = answer.Sources
	}
	return conn.WriteJSON(done)
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	a.pipeline.Clear()
	writeJSON(w, http.StatusOK, ClearResponse{Status: "success", Message: msgCleared})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := a.pipeline.Status()
	resp := StatusResponse{
		VideoLoaded:  st.Active,
		CurrentVideo: noVideo,
		VideoID:      st.VideoID,
		SessionID:    st.SessionID,
		Chunks:       st.Chunks,
	}
	if st.Active {
		resp.CurrentVideo = st.SourceURL
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusCode maps an error kind to its HTTP status.
func StatusCode(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidInput, models.KindNoActiveSession:
		return http.StatusBadRequest
	case models.KindTranscriptUnavailable, models.KindIndexEmpty:
		return http.StatusUnprocessableEntity
	case models.KindFetch, models.KindEmbeddingService, models.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage renders err for clients. Missing sessions get a hint instead
// of the bare sentinel text.
func errorMessage(err error) string {
	if errors.Is(err, models.ErrNoActiveSession) {
		return msgNoSession
	}
	return err.Error()
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	code := StatusCode(kind)

	attrs := []any{"path", r.URL.Path, "kind", kind, "status", code, "error", err}
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", attrs...)
	} else {
		a.logger.Info("request rejected", attrs...)
	}

	writeJSON(w, code, ErrorResponse{Error: ErrorBody{Kind: kind, Message: errorMessage(err)}})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %w", models.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
