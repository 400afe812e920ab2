package tools

import (
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/ytrag/internal/llm"
	"github.com/raphaelgruber/ytrag/internal/models"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so the calling model can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// FormatResults joins items with newlines for list output.
func FormatResults(items []string) string {
	return strings.Join(items, "\n")
}

// PipelineErrorResult turns a pipeline error into a tool error whose text
// starts with the error kind, followed by a hint suited to that kind.
func PipelineErrorResult(err error) *mcp.CallToolResult {
	kind := models.KindOf(err)
	return ErrorResult(string(kind)+": "+err.Error(), hintFor(kind, err))
}

func hintFor(kind models.ErrorKind, err error) string {
	if errors.Is(err, llm.ErrFatalAPI) {
		return "Check the provider API key and quota"
	}
	switch kind {
	case models.KindInvalidInput:
		return "Pass a YouTube watch, youtu.be, shorts or embed URL, or a non-empty question"
	case models.KindTranscriptUnavailable:
		return "The video has no English captions; try another video"
	case models.KindFetch:
		return "YouTube could not be reached; retry later"
	case models.KindIndexEmpty:
		return "The transcript contained no text"
	case models.KindEmbeddingService, models.KindGeneration:
		return "The model provider failed; retry later"
	case models.KindNoActiveSession:
		return "Call ingest_video first"
	default:
		return ""
	}
}
