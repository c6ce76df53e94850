package llm

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/config"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

type anthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

var _ Client = (*anthropicClient)(nil)

func newAnthropicClient(cfg *config.LLMConfig, logger *zap.Logger) *anthropicClient {
	return &anthropicClient{
		client:    anthropic.NewClient(cfg.APIKey),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := anthropic.RoleUser
		if m.Role == models.RoleAssistant {
			role = anthropic.RoleAssistant
		}
		content := m.Content
		messages = append(messages, anthropic.Message{
			Role: role,
			Content: []anthropic.MessageContent{
				{Type: "text", Text: &content},
			},
		})
	}

	request := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		request.System = req.System
	}

	resp, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: create messages: %s", apperrors.ErrUpstream, err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text = *block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: response has no text content", apperrors.ErrUpstream)
	}

	c.logger.Debug("completion received",
		zap.String("model", c.model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))

	return &CompletionResponse{
		Content:      text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
