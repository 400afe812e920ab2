// Package parser turns raw caption data into plain text and retrieval chunks.
package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/ytrag/internal/models"
)

// ChunkConfig defines chunking parameters.
type ChunkConfig = models.ChunkingConfig

// DefaultChunkConfig returns sensible defaults (1000 chars, 200 overlap).
func DefaultChunkConfig() ChunkConfig {
	return models.DefaultChunkingConfig()
}

// breakTiers lists boundary separators in order of preference.
// Separators within one tier compete on position (latest wins).
var breakTiers = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" ", "\t"},
}

// Split partitions text into overlapping chunks of at most maxSize runes.
//
// Each window prefers to end on a paragraph, line, sentence or word boundary
// and falls back to a hard cut when none lies in the back half of the window.
// Every chunk after the first starts exactly overlap runes before the end of
// its predecessor. Empty or whitespace-only text yields no chunks.
func Split(text string, maxSize, overlap int) []models.Chunk {
	if strings.TrimSpace(text) == "" || maxSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize - 1
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []models.Chunk
	start := 0
	for {
		end := start + maxSize
		if end >= n {
			end = n
		} else {
			end = snapToBoundary(runes, start, end, maxSize, overlap)
		}

		chunks = append(chunks, models.Chunk{
			Content:  string(runes[start:end]),
			Position: len(chunks),
			Start:    start,
			End:      end,
		})

		if end >= n {
			break
		}
		start = end - overlap
	}

	return chunks
}

// SplitWithConfig is Split using a ChunkConfig.
func SplitWithConfig(text string, cfg ChunkConfig) []models.Chunk {
	return Split(text, cfg.MaxSize, cfg.Overlap)
}

// snapToBoundary moves end back to the best break in runes[start:end].
// Only breaks in the back half of the window and past the overlap region are
// accepted, so the next chunk always starts after this one did.
func snapToBoundary(runes []rune, start, end, maxSize, overlap int) int {
	minEnd := start + maxSize/2
	if floor := start + overlap + 1; floor > minEnd {
		minEnd = floor
	}
	if minEnd >= end {
		return end
	}

	window := string(runes[minEnd:end])
	for _, tier := range breakTiers {
		best := -1
		for _, sep := range tier {
			if idx := strings.LastIndex(window, sep); idx >= 0 {
				// Break after the separator so it stays with the preceding text.
				pos := utf8.RuneCountInString(window[:idx]) + utf8.RuneCountInString(sep)
				if pos > best {
					best = pos
				}
			}
		}
		if best > 0 {
			return minEnd + best
		}
	}

	return end
}

// Overlap returns the runes shared by the end of a and the start of b, or ""
// when b does not start where a's overlap region begins.
func Overlap(a, b models.Chunk) string {
	if b.Start >= a.End || b.Start < a.Start {
		return ""
	}
	shared := a.End - b.Start
	ra := []rune(a.Content)
	return string(ra[len(ra)-shared:])
}
