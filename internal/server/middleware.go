package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxArgLogLen bounds logged MCP params; questions and URLs can be long.
const maxArgLogLen = 200

// slowRequestThreshold marks MCP calls logged at WARN. Tool calls that hit
// the embedding or language model routinely take seconds.
const slowRequestThreshold = 5 * time.Second

// LoggingMiddleware logs every MCP request with its duration.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := formatParams(req); params != "" {
				attrs = append(attrs, "params", truncate(params, maxArgLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("mcp request failed", attrs...)
			case isToolError(result):
				logger.Warn("mcp tool returned error", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow mcp request", attrs...)
			default:
				logger.Debug("mcp request completed", attrs...)
			}

			return result, err
		}
	}
}

// isToolError reports whether result is a tool call result flagged IsError.
func isToolError(result mcp.Result) bool {
	r, ok := result.(*mcp.CallToolResult)
	return ok && r != nil && r.IsError
}

func formatParams(req mcp.Request) string {
	if req == nil {
		return ""
	}
	params := req.GetParams()
	if params == nil {
		return ""
	}
	return fmt.Sprintf("%+v", params)
}

// truncate shortens s to maxLen bytes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
