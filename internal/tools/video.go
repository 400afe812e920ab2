package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// IngestInput defines the input schema for ingest_video.
type IngestInput struct {
	URL string `json:"url" jsonschema:"YouTube video URL (watch, youtu.be, shorts, embed or live)"`
}

// AskInput defines the input schema for ask_video.
type AskInput struct {
	Question       string `json:"question" jsonschema:"Question about the video content"`
	IncludeSources bool   `json:"include_sources,omitempty" jsonschema:"Append the transcript passages the answer was based on"`
}

// EmptyInput is used by tools without parameters.
type EmptyInput struct{}

// NewIngestHandler creates the ingest_video handler.
func NewIngestHandler(deps *Dependencies) mcp.ToolHandlerFor[IngestInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(input.URL) == "" {
			return ErrorResult("URL cannot be empty", "Provide a YouTube video URL"), nil, nil
		}

		ctx, cancel := withTimeout(ctx, deps.IngestTimeout)
		defer cancel()

		st, err := deps.Pipeline.Ingest(ctx, input.URL)
		if err != nil {
			deps.Logger.Warn("ingest_video failed", "url", input.URL, "error", err)
			return PipelineErrorResult(err), nil, nil
		}

		deps.Logger.Info("ingest_video completed", "video_id", st.VideoID, "chunks", st.Chunks)
		return TextResult(fmt.Sprintf("Video %s processed into %d chunks. You can now ask questions.", st.VideoID, st.Chunks)), nil, nil
	}
}

// NewAskHandler creates the ask_video handler.
func NewAskHandler(deps *Dependencies) mcp.ToolHandlerFor[AskInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(input.Question) == "" {
			return ErrorResult("Question cannot be empty", "Ask something about the video"), nil, nil
		}

		ctx, cancel := withTimeout(ctx, deps.AskTimeout)
		defer cancel()

		answer, err := deps.Pipeline.AskWithSources(ctx, input.Question)
		if err != nil {
			deps.Logger.Warn("ask_video failed", "error", err)
			return PipelineErrorResult(err), nil, nil
		}

		if !input.IncludeSources || len(answer.Sources) == 0 {
			return TextResult(answer.Text), nil, nil
		}

		lines := []string{answer.Text, "", "Sources:"}
		for i, src := range answer.Sources {
			lines = append(lines, fmt.Sprintf("[%d] (chunk %d, score %.3f) %s", i+1, src.Position, src.Score, strings.TrimSpace(src.Content)))
		}
		return TextResult(FormatResults(lines)), nil, nil
	}
}

// NewClearHandler creates the clear_video handler.
func NewClearHandler(deps *Dependencies) mcp.ToolHandlerFor[EmptyInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, any, error) {
		deps.Pipeline.Clear()
		return TextResult("Video cleared"), nil, nil
	}
}

// NewStatusHandler creates the video_status handler. The result is JSON.
func NewStatusHandler(deps *Dependencies) mcp.ToolHandlerFor[EmptyInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, any, error) {
		jsonBytes, err := json.MarshalIndent(deps.Pipeline.Status(), "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("encode status: %w", err)
		}
		return TextResult(string(jsonBytes)), nil, nil
	}
}
