package provider

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/contextkit/orchestrator/internal/domain"
)

// OpenAIClient talks to an OpenAI-compatible endpoint (OpenAI or Azure
// OpenAI, selected by the session's provider config).
type OpenAIClient struct {
	client *openai.Client
	model  string
	temp   float32
	maxTok int
}

// NewOpenAIClient builds a client from a session provider config.
func NewOpenAIClient(cfg domain.ProviderConfig, apiKey string) *OpenAIClient {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		temp:   cfg.Temperature,
		maxTok: cfg.MaxTokens,
	}
}

// Complete sends the conversation and returns the backend reply shape.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, turns []domain.Turn) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, turn := range turns {
		if turn.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return &Reply{OpenAI: &OpenAIReply{ChatCompletionResponse: resp}}, nil
}
