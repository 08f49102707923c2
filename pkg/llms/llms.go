// Package llms provides answer-generation model clients.
package llms

import (
	"context"
	"fmt"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// Response is the normalized result of a generation call. Failures are
// carried in Err rather than raised, so callers always receive a response
// object they can inspect.
type Response struct {
	Text string
	Err  error
}

// Ok reports whether generation succeeded with non-empty text.
func (r Response) Ok() bool {
	return r.Err == nil && r.Text != ""
}

// Provider generates text from a prompt.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Generate produces a completion for the prompt. Transport and API
	// failures are reported through Response.Err, never panics.
	Generate(ctx context.Context, prompt string) Response
}

// NewProviderFromConfig builds the configured LLM provider.
func NewProviderFromConfig(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
