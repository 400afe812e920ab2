package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// fakeFetcher returns a fixed transcript and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *fakeFetcher) set(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.err = text, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// letterEmbedder embeds text as letter frequencies.
type letterEmbedder struct {
	mu       sync.Mutex
	docCalls int
	err      error
}

func letters(text string) []float32 {
	v := make([]float32, 27)
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			v[r-'a']++
		case unicode.IsSpace(r):
		default:
			v[26]++
		}
	}
	return v
}

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.docCalls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letters(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return letters(text), nil
}

func (e *letterEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// recordingModel replies with a fixed answer and records every prompt.
type recordingModel struct {
	mu           sync.Mutex
	reply        string
	err          error
	prompts      []string
	temperatures []float64
	streamPieces []string
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt.String())
	m.temperatures = append(m.temperatures, opts.Temperature)
	reply, err, pieces := m.reply, m.err, m.streamPieces
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil {
		for _, p := range pieces {
			if err := opts.StreamingFunc(ctx, []byte(p)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        reply,
			GenerationInfo: map[string]any{"PromptTokens": 100, "CompletionTokens": 10},
		}},
	}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *recordingModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

var errBoom = errors.New("boom")
