package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"offerline/internal/domain"
	"offerline/internal/llm"
	"offerline/internal/logger"
	"offerline/internal/prompts"
)

// ProjectContext is the business context every document is written against.
type ProjectContext struct {
	BusinessName        string
	BusinessDescription string
	TargetCustomer      string
	PriceRange          string
	Competitors         string
	DeepResearch        bool
}

// ErrEmptyOutput is returned when the model produced only whitespace.
var ErrEmptyOutput = errors.New("model returned no text")

// GenerationError wraps any failure producing a single document.
type GenerationError struct {
	DocType domain.DocType
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate %s: %v", e.DocType, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator turns a document type plus context into model output.
type Generator struct {
	Model     llm.Model
	MaxTokens int
	// SearchCapable is false for backends that ignore Request.WebSearch.
	SearchCapable bool
	Log           *logger.Logger
}

// Generate renders the prompts for docType and returns the trimmed model text.
func (g *Generator) Generate(ctx context.Context, docType domain.DocType, pc ProjectContext, deps map[domain.DocType]string) (string, error) {
	system, err := prompts.System()
	if err != nil {
		return "", &GenerationError{DocType: docType, Err: err}
	}
	user, err := prompts.User(docType, prompts.Input{
		BusinessName:        pc.BusinessName,
		BusinessDescription: pc.BusinessDescription,
		TargetCustomer:      pc.TargetCustomer,
		PriceRange:          pc.PriceRange,
		Competitors:         pc.Competitors,
		Deps:                deps,
	})
	if err != nil {
		return "", &GenerationError{DocType: docType, Err: err}
	}
	if pc.DeepResearch && !g.SearchCapable && g.Log != nil {
		g.Log.Warn("web search not supported by llm backend", "doc_type", docType)
	}
	out, err := g.Model.Generate(ctx, llm.Request{
		System:    system,
		Prompt:    user,
		MaxTokens: g.MaxTokens,
		WebSearch: pc.DeepResearch,
	})
	if err != nil {
		return "", &GenerationError{DocType: docType, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &GenerationError{DocType: docType, Err: ErrEmptyOutput}
	}
	return out, nil
}

// ResolveDependencies picks the declared dependencies of docType out of available.
// Dependencies not yet produced are skipped.
func ResolveDependencies(docType domain.DocType, available map[domain.DocType]string) map[domain.DocType]string {
	out := map[domain.DocType]string{}
	for _, dep := range docType.Config().Dependencies {
		if content, ok := available[dep]; ok {
			out[dep] = content
		}
	}
	return out
}
