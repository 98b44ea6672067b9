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

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient calls the Ollama HTTP API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient constructs a client with the provided base URL.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OllamaClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ollamaErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("ollama api error: %s", errResp.Error)
		}
		return fmt.Errorf("ollama api error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OllamaGenerator generates through /api/chat with a fixed model.
type OllamaGenerator struct {
	client    *OllamaClient
	model     string
	maxTokens int
}

func NewOllamaGenerator(client *OllamaClient, model string, maxTokens int) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: strings.TrimSpace(model), maxTokens: maxTokens}
}

// Generate implements Generator using Ollama /api/chat.
func (g *OllamaGenerator) Generate(ctx context.Context, r Request) (Completion, error) {
	if g.model == "" {
		return Completion{}, fmt.Errorf("ollama generation model required")
	}
	messages := make([]ollamaChatMessage, 0, 2)
	if strings.TrimSpace(r.System) != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: r.System})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: r.User})

	var resp ollamaChatResponse
	if err := g.client.doJSON(ctx, "/api/chat", ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{NumPredict: maxTokensFor(r, g.maxTokens)},
	}, &resp); err != nil {
		return Completion{}, fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return Completion{}, ErrNotText
	}
	model := resp.Model
	if model == "" {
		model = g.model
	}
	return Completion{
		Text:         resp.Message.Content,
		Model:        model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int64             `json:"prompt_eval_count"`
	EvalCount       int64             `json:"eval_count"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
