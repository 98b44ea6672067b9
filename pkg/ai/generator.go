// Package ai wraps the text-generation providers behind one interface that
// also reports token usage.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotText is returned when a provider answers with no text content.
var ErrNotText = errors.New("unexpected response: not text")

// Request is one generation call.
type Request struct {
	System string
	User   string
	// Kind labels the call in logs ("report", "refine", "overview").
	Kind string
	// MaxTokens overrides the generator's output ceiling when positive.
	MaxTokens int
}

// Completion is the raw provider answer plus usage counters.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces text from a system and user prompt.
// Anthropic, OpenAI-compatible, Gemini and Ollama backends implement it.
type Generator interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

const (
	ProviderAnthropic    = "anthropic"
	ProviderOpenAICompat = "openai-compat"
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"

	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 16000
)

// Options selects and configures a provider.
type Options struct {
	Provider  string
	Model     string
	MaxTokens int
	Timeout   time.Duration

	AnthropicAPIKey     string
	AnthropicBaseURL    string
	OpenAICompatBaseURL string
	OpenAICompatAPIKey  string
	GeminiAPIKey        string
	OllamaBaseURL       string
}

// NewGenerator builds the generator named by opts.Provider.
func NewGenerator(opts Options) (Generator, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderAnthropic:
		if strings.TrimSpace(opts.Model) == "" {
			opts.Model = DefaultModel
		}
		return NewAnthropicGenerator(opts)
	case ProviderOpenAICompat:
		return NewOpenAICompatGenerator(opts.OpenAICompatBaseURL, opts.OpenAICompatAPIKey, opts.Model, opts.MaxTokens, opts.Timeout), nil
	case ProviderGemini:
		client, err := NewGeminiClient(opts.GeminiAPIKey, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return NewGeminiGenerator(client, opts.Model, opts.MaxTokens), nil
	case ProviderOllama:
		return NewOllamaGenerator(NewOllamaClient(opts.OllamaBaseURL, opts.Timeout), opts.Model, opts.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", opts.Provider)
	}
}

func maxTokensFor(req Request, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}
