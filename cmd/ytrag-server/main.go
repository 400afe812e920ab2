// Package main provides the HTTP API server for ytrag.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/ytrag/internal/app"
	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()

	logger.Info("starting ytrag-server",
		"port", cfg.ServerPort,
		"llm_provider", cfg.LLMProvider,
		"embed_provider", cfg.EmbedProvider,
	)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	orch, err := app.NewOrchestrator(ctx, cfg, collector, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	api := server.NewAPI(orch, server.APIConfig{
		IngestTimeout: cfg.IngestTimeout,
		AskTimeout:    cfg.AskTimeout,
	}, logger)

	// Writes must outlive a synchronous ingest.
	httpServer := server.NewHTTPServer(":"+cfg.ServerPort, api.Handler(), cfg.IngestTimeout+10*time.Second)

	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	api.Jobs().Wait()

	logger.Info("server stopped")
}
