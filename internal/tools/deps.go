// Package tools provides the MCP tool handlers over the video pipeline.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

// Pipeline is the subset of the Orchestrator the tools call.
type Pipeline interface {
	Ingest(ctx context.Context, rawURL string) (models.Status, error)
	AskWithSources(ctx context.Context, question string) (service.Answer, error)
	Clear()
	Status() models.Status
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Pipeline Pipeline
	Logger   *slog.Logger

	// Per-call limits; zero means the request context alone bounds the call.
	IngestTimeout time.Duration
	AskTimeout    time.Duration
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
