// Package models defines the data structures shared by the ytrag pipeline.
package models

// Chunk is a contiguous slice of transcript text, the unit of embedding and retrieval.
type Chunk struct {
	Content  string `json:"content"`  // Chunk text, not trimmed
	Position int    `json:"position"` // Order within the transcript
	Start    int    `json:"start"`    // Rune offset of the first character
	End      int    `json:"end"`      // Rune offset one past the last character
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// ChunkingConfig defines parameters for transcript chunking.
type ChunkingConfig struct {
	// MaxSize is the maximum chunk size in characters.
	MaxSize int

	// Overlap is the number of characters shared by adjacent chunks.
	Overlap int
}

// DefaultChunkingConfig returns the default chunking configuration.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxSize: 1000, // Cap at 1000 chars
		Overlap: 200,  // 200 char overlap for context
	}
}
