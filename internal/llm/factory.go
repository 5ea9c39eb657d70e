package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new LLM provider based on configuration. The
// provider is selected once at startup; there is no runtime registry.
func NewProvider(config Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = NewOpenAIProvider(config)

	case "anthropic", "claude":
		p, err = NewAnthropicProvider(config)

	case "ollama", "":
		p, err = NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}

	if err != nil {
		return nil, err
	}

	if config.RequestsPerSecond > 0 {
		p = NewRateLimited(p, config.RequestsPerSecond, config.Burst)
	}

	return p, nil
}
