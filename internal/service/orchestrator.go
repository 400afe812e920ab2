// Package service wires the transcript pipeline into a single queryable session.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/index"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/parser"
	"github.com/raphaelgruber/ytrag/internal/transcript"
)

// Fetcher returns the raw caption text for a video ID.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// Options configures the pipeline.
type Options struct {
	ChunkMaxSize     int
	ChunkOverlap     int
	RetrievalK       int
	ModelTemperature float64

	// CleanCaptions strips cue timing and markup before chunking.
	CleanCaptions bool
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	chunking := models.DefaultChunkingConfig()
	return Options{
		ChunkMaxSize:     chunking.MaxSize,
		ChunkOverlap:     chunking.Overlap,
		RetrievalK:       index.DefaultK,
		ModelTemperature: DefaultTemperature,
	}
}

// OptionsFromConfig extracts pipeline options from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		ChunkMaxSize:     cfg.ChunkMaxSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		RetrievalK:       cfg.RetrievalK,
		ModelTemperature: cfg.ModelTemperature,
		CleanCaptions:    cfg.TranscriptClean,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	switch {
	case o.ChunkMaxSize <= 0:
		return fmt.Errorf("chunk max size must be positive, got %d", o.ChunkMaxSize)
	case o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkMaxSize:
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", o.ChunkMaxSize, o.ChunkOverlap)
	case o.RetrievalK < 1:
		return fmt.Errorf("retrieval k must be at least 1, got %d", o.RetrievalK)
	case o.ModelTemperature < 0 || o.ModelTemperature > 2:
		return fmt.Errorf("model temperature must be in [0, 2], got %g", o.ModelTemperature)
	}
	return nil
}

// Session binds one ingested video to its index.
type Session struct {
	ID              string
	VideoID         string
	SourceURL       string
	Index           *index.Index
	ChunkCount      int
	TranscriptBytes int
	CreatedAt       time.Time
}

// Stage marks ingest progress.
type Stage string

const (
	StageFetched Stage = "fetched"
	StageChunked Stage = "chunked"
	StageIndexed Stage = "indexed"
	StageReady   Stage = "ready"
)

// StageObserver is told when each ingest stage completes.
type StageObserver func(stage Stage)

// Answer is a generated reply together with the passages it was grounded on.
type Answer struct {
	Text      string               `json:"answer"`
	Sources   []models.ScoredChunk `json:"sources"`
	VideoID   string               `json:"video_id"`
	SessionID string               `json:"session_id"`
}

// Orchestrator owns the single active session.
// Ingests are serialised; asks run concurrently against an immutable index.
type Orchestrator struct {
	fetcher  Fetcher
	embedder embeddings.Embedder
	synth    *Synthesizer
	opts     Options
	metrics  *metrics.Collector
	logger   *slog.Logger

	ingestSem chan struct{} // one slot; held for the whole ingest
	mu        sync.RWMutex
	session  *Session
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMetrics records stage timings in c.
func WithMetrics(c *metrics.Collector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator validates opts and assembles the pipeline.
func NewOrchestrator(fetcher Fetcher, embedder embeddings.Embedder, model llms.Model, opts Options, options ...OrchestratorOption) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}

	o := &Orchestrator{
		fetcher:   fetcher,
		embedder:  embedder,
		opts:      opts,
		logger:    slog.Default(),
		ingestSem: make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(o)
	}
	o.synth = NewSynthesizer(model, opts.ModelTemperature, o.metrics)
	return o, nil
}

// Metrics returns the collector (may be nil).
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Ingest replaces the active session with one built from rawURL.
func (o *Orchestrator) Ingest(ctx context.Context, rawURL string) (models.Status, error) {
	return o.IngestWithProgress(ctx, rawURL, nil)
}

// IngestWithProgress runs parse, fetch, chunk and index in order, reporting
// each completed stage to observe (which may be nil). A URL that does not
// name a video fails before any network call. On any failure the previously
// active session stays in place.
func (o *Orchestrator) IngestWithProgress(ctx context.Context, rawURL string, observe StageObserver) (models.Status, error) {
	if observe == nil {
		observe = func(Stage) {}
	}

	videoID, err := transcript.ExtractVideoID(rawURL)
	if err != nil {
		return models.Status{}, err
	}

	select {
	case o.ingestSem <- struct{}{}:
	case <-ctx.Done():
		return models.Status{}, fmt.Errorf("waiting for in-progress ingest: %w", ctx.Err())
	}
	defer func() { <-o.ingestSem }()
	if err := ctx.Err(); err != nil {
		return models.Status{}, fmt.Errorf("waiting for in-progress ingest: %w", err)
	}

	log := o.logger.With("video_id", videoID)
	log.Info("ingest started", "url", rawURL)
	began := time.Now()

	start := time.Now()
	raw, err := o.fetcher.Fetch(ctx, videoID)
	o.metrics.Track(metrics.OpTranscriptFetch, start, err)
	if err != nil {
		log.Warn("transcript fetch failed", "error", err)
		return models.Status{}, classifyFetchError(err)
	}
	observe(StageFetched)

	text := raw
	if o.opts.CleanCaptions {
		text = parser.CleanCaptions(raw)
	}

	chunks := parser.Split(text, o.opts.ChunkMaxSize, o.opts.ChunkOverlap)
	log.Debug("transcript chunked", "transcript_bytes", len(raw), "text_bytes", len(text), "chunks", len(chunks))
	if len(chunks) == 0 {
		return models.Status{}, fmt.Errorf("%w: transcript for %s has no text", models.ErrIndexEmpty, videoID)
	}
	observe(StageChunked)

	start = time.Now()
	ix, err := index.Build(ctx, o.embedder, chunks)
	o.metrics.Track(metrics.OpEmbedding, start, err)
	if err != nil {
		log.Warn("index build failed", "chunks", len(chunks), "error", err)
		return models.Status{}, err
	}
	observe(StageIndexed)

	session := &Session{
		ID:              uuid.New().String(),
		VideoID:         videoID,
		SourceURL:       rawURL,
		Index:           ix,
		ChunkCount:      len(chunks),
		TranscriptBytes: len(raw),
		CreatedAt:       time.Now(),
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()
	observe(StageReady)

	log.Info("ingest complete", "session_id", session.ID, "chunks", session.ChunkCount, "duration_ms", time.Since(began).Milliseconds())
	return statusOf(session), nil
}

// classifyFetchError keeps fetcher sentinels and files everything else,
// including timeouts, under ErrFetch.
func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrTranscriptUnavailable),
		errors.Is(err, models.ErrFetch):
		return err
	default:
		return models.Wrap(models.ErrFetch, err)
	}
}

// current returns the active session or ErrNoActiveSession.
func (o *Orchestrator) current() (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return nil, models.ErrNoActiveSession
	}
	return o.session, nil
}

// retrieve resolves the session and its top-k chunks for question.
func (o *Orchestrator) retrieve(ctx context.Context, question string) (*Session, []models.ScoredChunk, error) {
	session, err := o.current()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}

	start := time.Now()
	hits, err := session.Index.Query(ctx, question, o.opts.RetrievalK)
	o.metrics.Track(metrics.OpIndexQuery, start, err)
	if err != nil {
		return nil, nil, err
	}
	return session, hits, nil
}

// Ask answers question from the active session.
func (o *Orchestrator) Ask(ctx context.Context, question string) (string, error) {
	answer, err := o.AskWithSources(ctx, question)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

// AskWithSources answers question and returns the retrieved passages as well.
func (o *Orchestrator) AskWithSources(ctx context.Context, question string) (Answer, error) {
	session, hits, err := o.retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	text, err := o.synth.Answer(ctx, plainChunks(hits), question)
	if err != nil {
		o.logger.Warn("ask failed", "video_id", session.VideoID, "error", err)
		return Answer{}, err
	}

	return Answer{Text: text, Sources: hits, VideoID: session.VideoID, SessionID: session.ID}, nil
}

// AskStream answers question, passing streamed fragments to onToken.
func (o *Orchestrator) AskStream(ctx context.Context, question string, onToken func(string) error) (Answer, error) {
	session, hits, err := o.retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	text, err := o.synth.AnswerStream(ctx, plainChunks(hits), question, onToken)
	if err != nil {
		o.logger.Warn("streamed ask failed", "video_id", session.VideoID, "error", err)
		return Answer{}, err
	}

	return Answer{Text: text, Sources: hits, VideoID: session.VideoID, SessionID: session.ID}, nil
}

// Clear discards the active session. It always succeeds.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	prev := o.session
	o.session = nil
	o.mu.Unlock()

	if prev != nil {
		o.logger.Info("session cleared", "video_id", prev.VideoID, "session_id", prev.ID)
	}
}

// Status reports the active session, if any.
func (o *Orchestrator) Status() models.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return statusOf(o.session)
}

func statusOf(s *Session) models.Status {
	if s == nil {
		return models.Status{}
	}
	return models.Status{
		Active:    true,
		VideoID:   s.VideoID,
		SessionID: s.ID,
		SourceURL: s.SourceURL,
		Chunks:    s.ChunkCount,
		CreatedAt: s.CreatedAt,
	}
}

func plainChunks(hits []models.ScoredChunk) []models.Chunk {
	out := make([]models.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out
}
