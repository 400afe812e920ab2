package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/ytrag/internal/config"
)

// Model wraps a langchaingo model, tagging fatal provider errors and logging timings.
// It is itself an llms.Model so callers can swap in fakes.
type Model struct {
	llm       llms.Model
	modelName string
	logger    *slog.Logger
}

var _ llms.Model = (*Model)(nil)

// NewModel creates an LLM for cfg.LLMProvider.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderGoogleAI:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("Google API key required")
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		client, clientErr := newBedrockClient(ctx, cfg.AWSRegion)
		if clientErr != nil {
			return nil, clientErr
		}
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return WrapModel(model, cfg.LLMModel), nil
}

// WrapModel wraps an existing langchaingo model.
func WrapModel(model llms.Model, modelName string) *Model {
	return &Model{llm: model, modelName: modelName, logger: slog.Default()}
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, options...)
	duration := time.Since(start)

	if err != nil {
		m.logger.Warn("generation failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(err)
	}

	in, out := TokenUsage(resp)
	m.logger.Debug("generation complete", "model", m.modelName, "duration_ms", duration.Milliseconds(), "input_tokens", in, "output_tokens", out)
	return resp, nil
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// TokenUsage extracts prompt and completion token counts from a response.
// Providers report these under different GenerationInfo keys; unknown keys yield zero.
func TokenUsage(resp *llms.ContentResponse) (input, output int64) {
	if resp == nil || len(resp.Choices) == 0 {
		return 0, 0
	}
	info := resp.Choices[0].GenerationInfo
	input = firstInt(info, "PromptTokens", "InputTokens", "input_tokens", "prompt_tokens")
	output = firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens", "completion_tokens")
	return input, output
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}
