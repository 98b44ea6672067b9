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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client with the provided API key.
func NewGeminiClient(apiKey string, timeout time.Duration) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *GeminiClient) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp geminiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GeminiGenerator generates with a fixed Gemini model.
type GeminiGenerator struct {
	client    *GeminiClient
	model     string
	maxTokens int
}

func NewGeminiGenerator(client *GeminiClient, model string, maxTokens int) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: strings.TrimPrefix(strings.TrimSpace(model), "models/"), maxTokens: maxTokens}
}

// Generate implements Generator using generateContent.
func (g *GeminiGenerator) Generate(ctx context.Context, r Request) (Completion, error) {
	if g.model == "" {
		return Completion{}, fmt.Errorf("gemini generation model required")
	}
	reqBody := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: r.User}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokensFor(r, g.maxTokens),
		},
	}
	if strings.TrimSpace(r.System) != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: r.System}}}
	}
	var resp geminiGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", g.client.baseURL, g.model)
	if err := g.client.doJSON(ctx, url, reqBody, &resp); err != nil {
		return Completion{}, err
	}
	if len(resp.Candidates) == 0 {
		return Completion{}, ErrNotText
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return Completion{}, ErrNotText
	}
	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
