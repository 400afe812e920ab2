// Package app wires configuration into a ready-to-use pipeline.
// The CLI, HTTP server and MCP server all build their Orchestrator here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/llm"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/service"
	"github.com/raphaelgruber/ytrag/internal/transcript"
)

// NewCaptionSource returns the caption metadata source named by cfg.CaptionSource.
func NewCaptionSource(cfg config.Config) (transcript.CaptionSource, error) {
	switch cfg.CaptionSource {
	case config.CaptionSourceYtdlp:
		return transcript.NewYtdlpSource(cfg.YtdlpPath), nil
	case config.CaptionSourceInnertube:
		return transcript.NewInnertubeSource(&http.Client{Timeout: cfg.SubtitleTimeout}), nil
	default:
		return nil, fmt.Errorf("unsupported caption source: %q", cfg.CaptionSource)
	}
}

// NewFetcher builds the transcript fetcher described by cfg.
func NewFetcher(cfg config.Config, logger *slog.Logger) (*transcript.Fetcher, error) {
	source, err := NewCaptionSource(cfg)
	if err != nil {
		return nil, err
	}
	return transcript.NewFetcher(source,
		transcript.WithHTTPClient(&http.Client{Timeout: cfg.SubtitleTimeout}),
		transcript.WithFormat(cfg.CaptionFormat),
		transcript.WithLogger(logger),
	), nil
}

// NewOrchestrator builds the full pipeline: caption fetcher, embedding
// provider and language model, sharing collector for timings.
func NewOrchestrator(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*service.Orchestrator, error) {
	fetcher, err := NewFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}

	logger.Info("pipeline ready",
		"caption_source", cfg.CaptionSource,
		"embed_provider", cfg.EmbedProvider,
		"embed_model", embedder.Model(),
		"llm_provider", cfg.LLMProvider,
		"llm_model", model.Model(),
	)

	return service.NewOrchestrator(fetcher, embedder, model, service.OptionsFromConfig(cfg),
		service.WithMetrics(collector),
		service.WithLogger(logger),
	)
}
