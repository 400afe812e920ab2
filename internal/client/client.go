// Package client provides an HTTP and websocket client for ytrag-server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
	"github.com/raphaelgruber/ytrag/internal/service"
)

// DefaultEndpoint is used when neither an endpoint nor YTRAG_SERVER_URL is set.
const DefaultEndpoint = "http://localhost:8000"

// Client talks to a ytrag-server instance.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client.
// If endpoint is empty, uses YTRAG_SERVER_URL or DefaultEndpoint.
// Timeout can be configured via YTRAG_CLIENT_TIMEOUT (default 5m, ingests are slow).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("YTRAG_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("YTRAG_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// APIError is an error response from the server. It unwraps to the matching
// models sentinel, so errors.Is(err, models.ErrNoActiveSession) works remotely.
type APIError struct {
	StatusCode int
	Kind       models.ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return models.SentinelOf(e.Kind)
}

// IngestResult reports a completed ingest.
type IngestResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	VideoID   string `json:"video_id"`
	SessionID string `json:"session_id"`
	Chunks    int    `json:"chunks"`
}

// AskResult is a generated answer.
type AskResult struct {
	Answer  string               `json:"answer"`
	Success bool                 `json:"success"`
	Sources []models.ScoredChunk `json:"sources,omitempty"`
}

// Status describes the server's active session.
type Status struct {
	VideoLoaded  bool   `json:"video_loaded"`
	CurrentVideo string `json:"current_video"`
	VideoID      string `json:"video_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Chunks       int    `json:"chunks"`
}

type errorResponse struct {
	Error struct {
		Kind    models.ErrorKind `json:"kind"`
		Message string           `json:"message"`
	} `json:"error"`
}

// do sends a JSON request and decodes a JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Kind != "" {
			return &APIError{StatusCode: resp.StatusCode, Kind: errResp.Error.Kind, Message: errResp.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Kind: models.KindInternal, Message: strings.TrimSpace(string(data))}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

// Ingest loads a video and waits for indexing to finish.
func (c *Client) Ingest(ctx context.Context, videoURL string) (*IngestResult, error) {
	var result IngestResult
	if err := c.do(ctx, http.MethodPost, "/youtube/ingest", map[string]any{"youtube_url": videoURL}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IngestAsync starts a background ingest and returns its job.
func (c *Client) IngestAsync(ctx context.Context, videoURL string) (*service.JobView, error) {
	var job service.JobView
	if err := c.do(ctx, http.MethodPost, "/youtube/ingest", map[string]any{"youtube_url": videoURL, "async": true}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Job fetches one background ingest by ID.
func (c *Client) Job(ctx context.Context, id string) (*service.JobView, error) {
	var job service.JobView
	if err := c.do(ctx, http.MethodGet, "/youtube/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Jobs lists retained background ingests, most recent first.
func (c *Client) Jobs(ctx context.Context) ([]service.JobView, error) {
	var result struct {
		Jobs []service.JobView `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/youtube/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// WaitJob polls a job until it completes or fails.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (*service.JobView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == service.JobStatusCompleted || job.Status == service.JobStatusFailed {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ask answers a question about the loaded video.
func (c *Client) Ask(ctx context.Context, question string, includeSources bool) (*AskResult, error) {
	var result AskResult
	body := map[string]any{"question": question, "include_sources": includeSources}
	if err := c.do(ctx, http.MethodPost, "/youtube/ask", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Clear discards the loaded video.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/youtube/clear", nil, nil)
}

// Status reports the loaded video.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/youtube/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Metrics fetches the server's operation timings.
func (c *Client) Metrics(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// streamFrame mirrors the server's websocket frames.
type streamFrame struct {
	Type    string               `json:"type"`
	Content string               `json:"content,omitempty"`
	Answer  string               `json:"answer,omitempty"`
	Sources []models.ScoredChunk `json:"sources,omitempty"`
	Error   *struct {
		Kind    models.ErrorKind `json:"kind"`
		Message string           `json:"message"`
	} `json:"error,omitempty"`
}

// AskStream asks over the websocket endpoint, calling onToken for each
// streamed fragment. Return an error from onToken to abort.
func (c *Client) AskStream(ctx context.Context, question string, includeSources bool, onToken func(token string) error) (*AskResult, error) {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/youtube/ask/stream")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	if err := conn.WriteJSON(map[string]any{"question": question, "include_sources": includeSources}); err != nil {
		return nil, fmt.Errorf("send question: %w", err)
	}

	// Unblock ReadJSON when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read message: %w", err)
		}

		switch frame.Type {
		case "token":
			if err := onToken(frame.Content); err != nil {
				return nil, err
			}
		case "done":
			return &AskResult{Answer: frame.Answer, Success: true, Sources: frame.Sources}, nil
		case "error":
			if frame.Error == nil {
				return nil, fmt.Errorf("stream error without details")
			}
			return nil, &APIError{StatusCode: http.StatusOK, Kind: frame.Error.Kind, Message: frame.Error.Message}
		default:
			return nil, fmt.Errorf("unexpected stream message type %q", frame.Type)
		}
	}
}
