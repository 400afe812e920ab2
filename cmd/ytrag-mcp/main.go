// Package main provides the entry point for the ytrag MCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/ytrag/internal/app"
	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/server"
	"github.com/raphaelgruber/ytrag/internal/tools"
)

const version = "0.1.0"

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

	// Stdout carries the protocol, so logs go to stderr and the log file only.
	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()

	logger.Info("ytrag-mcp starting",
		"version", version,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"embed_model", cfg.EmbedModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	orch, err := app.NewOrchestrator(ctx, cfg, metrics.NewCollector(), logger)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	srv := server.New(version, logger)
	srv.Setup()

	tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{
		Pipeline:      orch,
		Logger:        logger,
		IngestTimeout: cfg.IngestTimeout,
		AskTimeout:    cfg.AskTimeout,
	})

	logger.Info("server initialized, starting stdio transport")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
