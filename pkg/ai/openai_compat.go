package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator calls any OpenAI-compatible /chat/completions endpoint
// (vLLM, LiteLLM, OpenRouter, self-hosted models).
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds an OpenAI-compatible Generator.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate implements Generator using the chat completions API.
func (g *OpenAICompatGenerator) Generate(ctx context.Context, r Request) (Completion, error) {
	if g.model == "" {
		return Completion{}, fmt.Errorf("openai-compat generation model required")
	}
	messages := make([]oaiMessage, 0, 2)
	if strings.TrimSpace(r.System) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: r.System})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: r.User})

	body, err := json.Marshal(oaiChatRequest{
		Model:     g.model,
		Messages:  messages,
		MaxTokens: maxTokensFor(r, g.maxTokens),
	})
	if err != nil {
		return Completion{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return Completion{}, fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return Completion{}, fmt.Errorf("openai-compat api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Completion{}, fmt.Errorf("openai-compat decode: %w", err)
	}
	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return Completion{}, ErrNotText
	}
	model := chatResp.Model
	if model == "" {
		model = g.model
	}
	return Completion{
		Text:         chatResp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
