// Package llm abstracts the hosted language model used to describe
// schemas and answer chat questions about a data source.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/config"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// CompletionRequest is one conversation turn sent to the model. System
// carries the data source context; Messages is the active conversation
// in order.
type CompletionRequest struct {
	System    string
	Messages  []models.Message
	MaxTokens int
}

// CompletionResponse is the model's reply with provider-reported token
// usage. Providers that do not report usage leave the counts zero and
// callers fall back to estimation.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Client is a hosted LLM provider.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// NewClient builds the provider selected by configuration.
func NewClient(cfg *config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg, logger), nil
	case "anthropic":
		return newAnthropicClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", apperrors.ErrValidation, cfg.Provider)
	}
}
