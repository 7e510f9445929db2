package llm

import (
	"context"
	"fmt"

	"github.com/29m10/foodeasy-backend/internal/config"
	"github.com/29m10/foodeasy-backend/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// NewTextGenerator creates the client for cfg.LLMProvider.
// Release it with Close when done.
func NewTextGenerator(ctx context.Context, cfg *config.Config) (TextGenerator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGroq:
		return NewGroqClient(cfg), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}

// Close closes gen when it holds resources and is a no-op otherwise.
func Close(gen TextGenerator) error {
	if c, ok := gen.(Closer); ok {
		return c.Close()
	}
	return nil
}
