package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidInput indicates a malformed URL or question. The caller must correct the input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTranscriptUnavailable indicates the video has no English caption track.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")

	// ErrFetch indicates caption metadata or subtitle download failed.
	// Potentially retryable by the caller.
	ErrFetch = errors.New("fetch failed")

	// ErrIndexEmpty indicates chunking produced nothing to index.
	ErrIndexEmpty = errors.New("index empty")

	// ErrEmbeddingService indicates the embedding provider failed or returned malformed vectors.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrGeneration indicates the language model call failed or returned nothing.
	ErrGeneration = errors.New("generation error")

	// ErrNoActiveSession indicates ask was called before a successful ingest.
	ErrNoActiveSession = errors.New("no active session")
)

// ErrorKind names an error category for outer surfaces (HTTP, MCP, CLI).
type ErrorKind string

const (
	KindInvalidInput          ErrorKind = "InvalidInput"
	KindTranscriptUnavailable ErrorKind = "TranscriptUnavailable"
	KindFetch                 ErrorKind = "FetchError"
	KindIndexEmpty            ErrorKind = "IndexEmptyError"
	KindEmbeddingService      ErrorKind = "EmbeddingServiceError"
	KindGeneration            ErrorKind = "GenerationError"
	KindNoActiveSession       ErrorKind = "NoActiveSession"
	KindInternal              ErrorKind = "InternalError"
)

var kindsBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrTranscriptUnavailable, KindTranscriptUnavailable},
	{ErrFetch, KindFetch},
	{ErrIndexEmpty, KindIndexEmpty},
	{ErrEmbeddingService, KindEmbeddingService},
	{ErrGeneration, KindGeneration},
	{ErrNoActiveSession, KindNoActiveSession},
}

// KindOf classifies err by the first matching sentinel.
// Unclassified errors (including context cancellation) are KindInternal.
func KindOf(err error) ErrorKind {
	for _, k := range kindsBySentinel {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Wrap tags err with sentinel, preserving the original message.
// Returns nil if err is nil. Errors already carrying sentinel are returned unchanged.
func Wrap(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// SentinelOf returns the sentinel for kind, or nil for KindInternal and
// unknown kinds. Clients use it to restore errors.Is checks on remote errors.
func SentinelOf(kind ErrorKind) error {
	for _, k := range kindsBySentinel {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
