package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger from cfg: human-readable text on
// stderr plus JSON lines appended to cfg.LogFile. An empty LogFile, or one
// that cannot be opened, leaves stderr as the only sink.
// The returned cleanup closes the log file.
func SetupLogger(cfg Config) (*slog.Logger, func() error) {
	return setupLogger(os.Stderr, cfg.LogFile, cfg.LogLevel)
}

func setupLogger(console io.Writer, logFile string, level slog.Level) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})

	if logFile == "" {
		return slog.New(consoleHandler), noop
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return logger, noop
	}

	return NewLogger(console, file, level), file.Close
}

// NewLogger fans records out to a text handler on console and a JSON handler on file.
func NewLogger(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}
