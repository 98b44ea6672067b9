package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicGenerator builds the default provider.
func NewAnthropicGenerator(opts Options) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(opts.AnthropicAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(opts.Timeout),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(opts.AnthropicBaseURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(clientOpts...),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}, nil
}

// Generate implements Generator. Only text blocks are read.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Completion, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokensFor(req, g.maxTokens)),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var (
		text  strings.Builder
		found bool
	)
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return Completion{}, ErrNotText
	}
	model := string(resp.Model)
	if model == "" {
		model = g.model
	}
	return Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
