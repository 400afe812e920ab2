// Package metrics provides in-memory runtime statistics for the RAG pipeline.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpTranscriptFetch = "transcript_fetch"
	OpEmbedding       = "embedding"
	OpIndexQuery      = "index_query"
	OpLLMGenerate     = "llm_generate"
	OpLLMStream       = "llm_stream"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (LLM operations only)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
}

// Snapshot represents pipeline statistics at a point in time.
type Snapshot struct {
	UptimeSeconds   float64            `json:"uptime_seconds"`
	TranscriptFetch *OperationSnapshot `json:"transcript_fetch,omitempty"`
	Embedding       *OperationSnapshot `json:"embedding,omitempty"`
	IndexQuery      *OperationSnapshot `json:"index_query,omitempty"`
	LLMGenerate     *OperationSnapshot `json:"llm_generate,omitempty"`
	LLMStream       *OperationSnapshot `json:"llm_stream,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration) {
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration)
}

// RecordError records a failed operation. Failures count toward Errors but not timings.
func (c *Collector) RecordError(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).Errors++
}

// Track records duration under op, or an error when err is non-nil.
// Usage: defer-free wrapping of a single call, e.g.
//
//	start := time.Now()
//	v, err := fetch()
//	collector.Track(metrics.OpTranscriptFetch, start, err)
func (c *Collector) Track(op string, start time.Time, err error) {
	if err != nil {
		c.RecordError(op)
		return
	}
	c.RecordTiming(op, time.Since(start))
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || (m.Count == 0 && m.Errors == 0) {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
	if m.Count > 0 {
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		snap.MinTimeMs = m.MinTime.Milliseconds()
	}

	if includeTokens && m.Count > 0 && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(totalIn) / float64(m.Count)
		avgOut := float64(totalOut) / float64(m.Count)

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:   time.Since(c.startTime).Seconds(),
		TranscriptFetch: snapshotOp(c.ops[OpTranscriptFetch], false),
		Embedding:       snapshotOp(c.ops[OpEmbedding], false),
		IndexQuery:      snapshotOp(c.ops[OpIndexQuery], false),
		LLMGenerate:     snapshotOp(c.ops[OpLLMGenerate], true),
		LLMStream:       snapshotOp(c.ops[OpLLMStream], true),
	}
}
