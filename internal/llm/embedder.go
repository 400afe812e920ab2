// Package llm builds embedding and text generation clients on top of langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/embeddings"
	bedrockembed "github.com/tmc/langchaingo/embeddings/bedrock"
	"github.com/tmc/langchaingo/embeddings/voyageai"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/models"
)

// Embedder wraps a langchaingo embedder with shape validation.
// It satisfies embeddings.Embedder; every failure wraps models.ErrEmbeddingService.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	logger    *slog.Logger
}

var _ embeddings.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder for cfg.EmbedProvider.
func NewEmbedder(ctx context.Context, cfg config.Config) (*Embedder, error) {
	model, err := newProviderEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return WrapEmbedder(model, cfg.EmbedModel, cfg.EmbedDimension), nil
}

// WrapEmbedder adds validation to an existing embedder. A dimension of 0
// only requires vectors within one call to agree in length.
func WrapEmbedder(model embeddings.Embedder, modelName string, dimension int) *Embedder {
	return &Embedder{
		model:     model,
		dimension: dimension,
		modelName: modelName,
		logger:    slog.Default(),
	}
}

func newProviderEmbedder(ctx context.Context, cfg config.Config) (embeddings.Embedder, error) {
	batch := embeddings.WithBatchSize(cfg.EmbedBatchSize)

	switch cfg.EmbedProvider {
	case config.ProviderGoogleAI:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("Google API key required")
		}
		client, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai client: %w", err)
		}
		return embeddings.NewEmbedder(client, batch)

	case config.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return embeddings.NewEmbedder(client, batch)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return embeddings.NewEmbedder(client, batch)

	case config.ProviderVoyageAI:
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("Voyage API key required")
		}
		return voyageai.NewVoyageAI(
			voyageai.WithToken(cfg.VoyageAPIKey),
			voyageai.WithModel(cfg.EmbedModel),
			voyageai.WithBatchSize(cfg.EmbedBatchSize),
		)

	case config.ProviderBedrock:
		client, err := newBedrockClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return bedrockembed.NewBedrock(
			bedrockembed.WithClient(client),
			bedrockembed.WithModel(cfg.EmbedModel),
			bedrockembed.WithBatchSize(cfg.EmbedBatchSize),
		)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// EmbedDocuments embeds texts in order, one vector per text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		e.logger.Warn("embedding failed", "model", e.modelName, "texts", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, models.Wrap(models.ErrEmbeddingService, fmt.Errorf("embed documents: %w", wrapFatalError(err)))
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: count mismatch: got %d, want %d", models.ErrEmbeddingService, len(vectors), len(texts))
	}
	if err := e.checkDimensions(vectors); err != nil {
		return nil, err
	}

	e.logger.Debug("embedding complete", "model", e.modelName, "texts", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("query embedding failed", "model", e.modelName, "text_len", len(text), "error", err)
		return nil, models.Wrap(models.ErrEmbeddingService, fmt.Errorf("embed query: %w", wrapFatalError(err)))
	}
	if err := e.checkDimensions([][]float32{vector}); err != nil {
		return nil, err
	}

	e.logger.Debug("query embedded", "model", e.modelName, "text_len", len(text), "duration_ms", time.Since(start).Milliseconds())
	return vector, nil
}

func (e *Embedder) checkDimensions(vectors [][]float32) error {
	want := e.dimension
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: embedding %d is empty", models.ErrEmbeddingService, i)
		}
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			return fmt.Errorf("%w: embedding %d dimension mismatch: got %d, want %d", models.ErrEmbeddingService, i, len(v), want)
		}
		for j, x := range v {
			if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: embedding %d has non-finite component %d (%v)", models.ErrEmbeddingService, i, j, x)
			}
		}
	}
	return nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension (0 when unchecked).
func (e *Embedder) Dimension() int {
	return e.dimension
}

// bedrockruntime client shared by the embedding and generation paths.
func newBedrockClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
