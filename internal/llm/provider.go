package llm

import (
	"context"

	"github.com/ppiankov/veracity/internal/model"
)

// Provider defines the interface for LLM completion backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single chat completion and returns the generated text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for one completion call
type CompletionRequest struct {
	// System is the system prompt establishing the task
	System string

	// Prompt is the user message
	Prompt string

	// Model overrides the configured default model
	Model string

	// Temperature controls randomness; the audit stages always use 0
	Temperature float64

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse contains the generated output
type CompletionResponse struct {
	// Content is the generated text
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption when the backend reports it
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int

	// RequestsPerSecond caps the call rate against the backend
	RequestsPerSecond float64

	// Burst for the rate limiter
	Burst int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "ollama",
		Model:             "llama3.2",
		Timeout:           30,
		MaxTokens:         1024,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:          mc.Provider,
		Model:             mc.Model,
		APIKey:            mc.APIKey,
		BaseURL:           mc.BaseURL,
		Timeout:           mc.Timeout,
		MaxTokens:         mc.MaxTokens,
		RequestsPerSecond: mc.RequestsPerSecond,
		Burst:             mc.Burst,
	}
}
