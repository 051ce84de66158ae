package llm

import (
	"context"
	"errors"
	"fmt"

	"offerline/internal/config"
)

// Request is one text generation call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// WebSearch lets the model run a search step before answering, when the backend supports it.
	WebSearch bool
}

// Model generates text. Implementations return the concatenated text of the response.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when the backend answers with no text at all.
var ErrEmptyResponse = errors.New("empty model response")

// New builds the Model configured by cfg.
func New(cfg config.LLMConfig) (Model, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic api key required")
		}
		return NewAnthropic(cfg), nil
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key required")
		}
		return newOpenAI(cfg)
	case config.ProviderOllama:
		return newOllama(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
