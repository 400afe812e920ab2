package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/raphaelgruber/ytrag/internal/llm"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/models"
)

// DefaultTemperature is the sampling temperature for answers.
const DefaultTemperature = 0.7

// answerPrompt is filled verbatim with the retrieved context and the question.
var answerPrompt = prompts.PromptTemplate{
	Template:       "Answer based on the context from the YouTube video.\n\nContext: {context}\n\nQuestion: {question}\n\nAnswer:",
	InputVariables: []string{"context", "question"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// Synthesizer turns retrieved chunks and a question into an answer.
type Synthesizer struct {
	model       llms.Model
	temperature float64
	metrics     *metrics.Collector
}

// NewSynthesizer creates a synthesizer. A nil collector disables timing.
func NewSynthesizer(model llms.Model, temperature float64, collector *metrics.Collector) *Synthesizer {
	return &Synthesizer{model: model, temperature: temperature, metrics: collector}
}

// BuildPrompt joins chunk contents with blank lines and fills the answer template.
func BuildPrompt(chunks []models.Chunk, question string) (string, error) {
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	prompt, err := answerPrompt.Format(map[string]any{
		"context":  strings.Join(contents, "\n\n"),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return prompt, nil
}

// Answer runs one completion over the prompt and returns the trimmed reply.
// Model errors and blank replies wrap models.ErrGeneration; nothing is retried.
func (s *Synthesizer) Answer(ctx context.Context, chunks []models.Chunk, question string) (string, error) {
	return s.generate(ctx, chunks, question, metrics.OpLLMGenerate, llms.WithTemperature(s.temperature))
}

// AnswerStream is Answer with onToken called for each streamed fragment.
// The returned string is the full trimmed reply. An error from onToken aborts generation.
func (s *Synthesizer) AnswerStream(ctx context.Context, chunks []models.Chunk, question string, onToken func(string) error) (string, error) {
	stream := llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return onToken(string(chunk))
	})
	return s.generate(ctx, chunks, question, metrics.OpLLMStream, llms.WithTemperature(s.temperature), stream)
}

func (s *Synthesizer) generate(ctx context.Context, chunks []models.Chunk, question, op string, options ...llms.CallOption) (string, error) {
	prompt, err := BuildPrompt(chunks, question)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}

	msg := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
	}

	start := time.Now()
	resp, err := s.model.GenerateContent(ctx, []llms.MessageContent{msg}, options...)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("answer generation failed", "chunks", len(chunks), "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, errors.New("no response choices"))
	}

	in, out := llm.TokenUsage(resp)
	s.metrics.RecordLLMUsage(op, duration, in, out)

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", models.ErrGeneration)
	}

	slog.Debug("answer generated", "chunks", len(chunks), "answer_len", len(answer), "duration_ms", duration.Milliseconds())
	return answer, nil
}
