package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/contextkit/orchestrator/internal/domain"
)

// MockClient is a deterministic backend used in tests and when no real
// provider is configured.
type MockClient struct{}

var _ Client = (*MockClient)(nil)

// Complete returns an OpenAI-shaped reply echoing the last user turn.
func (MockClient) Complete(_ context.Context, _ string, turns []domain.Turn) (*Reply, error) {
	var lastUser string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			lastUser = turns[i].Content
			break
		}
	}

	content := "[MOCK] This is a mock assistant reply."
	if lastUser != "" {
		content = fmt.Sprintf("[MOCK] Received your message: %q.", truncate(lastUser, 100))
	}

	return &Reply{OpenAI: &OpenAIReply{
		ChatCompletionResponse: openai.ChatCompletionResponse{
			ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   "mock-model",
			Choices: []openai.ChatCompletionChoice{{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{
				PromptTokens:     len(lastUser) / 4,
				CompletionTokens: len(content) / 4,
				TotalTokens:      (len(lastUser) + len(content)) / 4,
			},
		},
	}}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
