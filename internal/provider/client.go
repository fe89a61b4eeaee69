// Package provider defines the model-client contract and the per-backend
// reply shapes consumed by the conversation layer.
package provider

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/contextkit/orchestrator/internal/domain"
)

// OpenAIReply is the reply shape of OpenAI-compatible backends (OpenAI,
// Azure OpenAI). It embeds the SDK response and carries any repository
// references the backend surfaced.
type OpenAIReply struct {
	openai.ChatCompletionResponse
	References []string `json:"references,omitempty"`
}

// OllamaMessage is the message element of an Ollama chat reply.
type OllamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaReply is the reply shape of an Ollama backend.
type OllamaReply struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         OllamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	References      []string      `json:"references,omitempty"`
}

// Reply is the tagged union handed across the provider boundary. Exactly one
// variant is set.
type Reply struct {
	OpenAI *OpenAIReply
	Ollama *OllamaReply
}

// Client is the contract for a model backend. Implementations block until
// the backend replies or ctx is cancelled.
type Client interface {
	Complete(ctx context.Context, systemPrompt string, turns []domain.Turn) (*Reply, error)
}
