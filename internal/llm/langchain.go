package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"offerline/internal/config"
)

// LangChain wraps a langchaingo model. Web search is not available through it;
// such requests are answered from the model's own knowledge.
type LangChain struct {
	llm       llms.Model
	name      string
	maxTokens int
}

func newOpenAI(cfg config.LLMConfig) (*LangChain, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &LangChain{llm: model, name: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

func newOllama(cfg config.LLMConfig) (*LangChain, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &LangChain{llm: model, name: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

// NewLangChain wraps an existing langchaingo model.
func NewLangChain(model llms.Model, name string, maxTokens int) *LangChain {
	return &LangChain{llm: model, name: name, maxTokens: maxTokens}
}

func (m *LangChain) Generate(ctx context.Context, req Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	var callOpts []llms.CallOption
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}
	response, err := m.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", m.name, err)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, choice := range response.Choices {
		b.WriteString(choice.Content)
	}
	return b.String(), nil
}
