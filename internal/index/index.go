// Package index holds an in-memory exact nearest-neighbour index over transcript chunks.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/raphaelgruber/ytrag/internal/models"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 4

// Index maps chunk embeddings back to their chunks. It is immutable after
// Build and safe for concurrent queries.
type Index struct {
	embedder embeddings.Embedder
	chunks   []models.Chunk
	vectors  [][]float32
	norms    []float64
	dim      int
}

// Build embeds every chunk in one batched call and returns the finished index.
// Queries use the same embedder so question and chunk vectors share a space.
func Build(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, models.ErrIndexEmpty
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingService, len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", models.ErrEmbeddingService, i, len(v), dim)
		}
		if j := nonFinite(v); j >= 0 {
			return nil, fmt.Errorf("%w: vector %d has non-finite component %d (%v)", models.ErrEmbeddingService, i, j, v[j])
		}
		norms[i] = norm(v)
	}

	owned := make([]models.Chunk, len(chunks))
	copy(owned, chunks)

	return &Index{
		embedder: embedder,
		chunks:   owned,
		vectors:  vectors,
		norms:    norms,
		dim:      dim,
	}, nil
}

// Query returns up to k chunks most similar to question, best first.
// Equal scores keep original chunk order.
func (ix *Index) Query(ctx context.Context, question string, k int) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", models.ErrInvalidInput, k)
	}

	q, err := ix.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, err)
	}
	if len(q) != ix.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", models.ErrEmbeddingService, len(q), ix.dim)
	}
	if j := nonFinite(q); j >= 0 {
		return nil, fmt.Errorf("%w: query vector has non-finite component %d (%v)", models.ErrEmbeddingService, j, q[j])
	}

	scored := make([]models.ScoredChunk, len(ix.chunks))
	qNorm := norm(q)
	for i, v := range ix.vectors {
		scored[i] = models.ScoredChunk{
			Chunk: ix.chunks[i],
			Score: cosine(q, v, qNorm, ix.norms[i]),
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Position < scored[b].Position
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Dimension returns the vector dimension.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Chunks returns a copy of the indexed chunks in position order.
func (ix *Index) Chunks() []models.Chunk {
	out := make([]models.Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// nonFinite returns the position of the first NaN or infinite component, or -1.
func nonFinite(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 for zero vectors instead of NaN so they sort last.
func cosine(a, b []float32, normA, normB float64) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (normA * normB))
}
