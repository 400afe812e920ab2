package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_video",
		Description: "Fetch a YouTube video's English transcript and index it for questions. Replaces any previously loaded video.",
	}, NewIngestHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_video",
		Description: "Answer a question from the transcript of the loaded video",
	}, NewAskHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_video",
		Description: "Discard the loaded video",
	}, NewClearHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_status",
		Description: "Report which video is loaded, if any",
	}, NewStatusHandler(deps))
}
