package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAnthropicGeneratorReturnsTextAndUsage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"html\":"}, {"type": "text", "text": "\"<div></div>\"}"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 1200, "output_tokens": 340}
		}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Options{
		Provider:         ProviderAnthropic,
		AnthropicAPIKey:  "test-key",
		AnthropicBaseURL: srv.URL,
		MaxTokens:        16000,
		Timeout:          5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	c, err := g.Generate(context.Background(), Request{System: "sys", User: "user", Kind: "report"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Text != `{"html":"<div></div>"}` {
		t.Fatalf("text = %q", c.Text)
	}
	if c.Model != "claude-sonnet-4-20250514" || c.InputTokens != 1200 || c.OutputTokens != 340 {
		t.Fatalf("unexpected completion: %+v", c)
	}
	if got["model"] != DefaultModel {
		t.Fatalf("request model = %v", got["model"])
	}
	if mt, _ := got["max_tokens"].(float64); mt != 16000 {
		t.Fatalf("request max_tokens = %v", got["max_tokens"])
	}
}

func TestAnthropicGeneratorRejectsNonText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
			"content": [{"type": "tool_use", "id": "tu_1", "name": "noop", "input": {}}],
			"stop_reason": "tool_use", "stop_sequence": null,
			"usage": {"input_tokens": 5, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator(Options{AnthropicAPIKey: "k", AnthropicBaseURL: srv.URL, Model: DefaultModel, MaxTokens: 10, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if _, err := g.Generate(context.Background(), Request{User: "u"}); !errors.Is(err, ErrNotText) {
		t.Fatalf("expected ErrNotText, got %v", err)
	}
}

func TestAnthropicGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(Options{Provider: ProviderAnthropic}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewGenerator(Options{Provider: "mystery"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestOpenAICompatGeneratorUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		var req oaiChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.MaxTokens != 99 {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"<html></html>"}}],"usage":{"prompt_tokens":11,"completion_tokens":22}}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1/", "secret", "gpt-4o", 1000, 5*time.Second)
	c, err := g.Generate(context.Background(), Request{System: "s", User: "u", MaxTokens: 99})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Text != "<html></html>" || c.Model != "gpt-4o" || c.InputTokens != 11 || c.OutputTokens != 22 {
		t.Fatalf("unexpected completion: %+v", c)
	}
}

func TestOpenAICompatGeneratorPropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL, "", "m", 10, 5*time.Second)
	_, err := g.Generate(context.Background(), Request{User: "u"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestGeminiGeneratorUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-pro:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gk" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4},"modelVersion":"gemini-2.5-pro-001"}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("gk", 5*time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	client.baseURL = srv.URL
	c, err := NewGeminiGenerator(client, "models/gemini-2.5-pro", 100).Generate(context.Background(), Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Text != "hello world" || c.Model != "gemini-2.5-pro-001" || c.InputTokens != 3 || c.OutputTokens != 4 {
		t.Fatalf("unexpected completion: %+v", c)
	}
}

func TestOllamaGeneratorUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Options.NumPredict != 50 {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"ok"},"prompt_eval_count":7,"eval_count":8}`))
	}))
	defer srv.Close()

	c, err := NewOllamaGenerator(NewOllamaClient(srv.URL, 5*time.Second), "llama3", 50).Generate(context.Background(), Request{User: "u"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Text != "ok" || c.InputTokens != 7 || c.OutputTokens != 8 {
		t.Fatalf("unexpected completion: %+v", c)
	}
}

func TestOllamaGeneratorEmptyIsNotText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"  "}}`))
	}))
	defer srv.Close()

	_, err := NewOllamaGenerator(NewOllamaClient(srv.URL, 5*time.Second), "llama3", 0).Generate(context.Background(), Request{User: "u"})
	if !errors.Is(err, ErrNotText) {
		t.Fatalf("expected ErrNotText, got %v", err)
	}
}
