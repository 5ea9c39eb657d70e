package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ollamaTestServer(t *testing.T, handler http.HandlerFunc) (*OllamaProvider, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	p, err := NewOllamaProvider(Config{BaseURL: ts.URL, Model: "llama3.2"})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return p, ts
}

func TestOllamaProvider_Complete(t *testing.T) {
	var gotReq ollamaRequest
	p, _ := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Response:        `["a claim"]`,
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		System:      "extract claims",
		Prompt:      "the text",
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if resp.Content != `["a claim"]` {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("expected 15 tokens, got %d", resp.TokensUsed)
	}
	if gotReq.Model != "llama3.2" {
		t.Errorf("expected configured model, got %s", gotReq.Model)
	}
	if gotReq.System != "extract claims" {
		t.Errorf("system prompt not forwarded: %s", gotReq.System)
	}
	if gotReq.Stream {
		t.Error("expected non-streaming request")
	}
	if gotReq.Options.NumPredict != 256 {
		t.Errorf("expected num_predict 256, got %d", gotReq.Options.NumPredict)
	}
}

func TestOllamaProvider_APIError(t *testing.T) {
	p, _ := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaErrorBody{Error: "model not found"})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected an error for API failure")
	}
}

func TestOllamaProvider_ConnectionRefused(t *testing.T) {
	p, err := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1", Timeout: 1})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected an error for unreachable backend")
	}
	if !errors.Is(err, ErrProviderConnection) && !errors.Is(err, ErrProviderTimeout) {
		t.Errorf("expected a classified transport error, got %v", err)
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	p, _ := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	if !p.IsAvailable(context.Background()) {
		t.Error("expected available")
	}

	down, err := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1", Timeout: 1})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if down.IsAvailable(context.Background()) {
		t.Error("expected unavailable when unreachable")
	}
}

func TestOllamaProvider_Defaults(t *testing.T) {
	p, err := NewOllamaProvider(Config{})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("unexpected default base URL: %s", p.baseURL)
	}
	if p.Name() != "ollama" {
		t.Errorf("unexpected name: %s", p.Name())
	}
}
