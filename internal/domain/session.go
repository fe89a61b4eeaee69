// Package domain defines the core domain models for the orchestrator.
package domain

import "time"

// Provider identifiers for the supported AI backends.
const (
	ProviderAzureOpenAI = "azure-openai"
	ProviderOllama      = "ollama"
)

// DefaultSystemPrompt is used when a session is created without one.
const DefaultSystemPrompt = "You are a guard-railed operator for context repository pipelines. " +
	"Confirm scope, execute only allowlisted commands, and summarize results for humans."

// ProviderConfig configures the model backend for a session.
type ProviderConfig struct {
	Provider    string  `json:"provider"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Model       string  `json:"model,omitempty"`
	APIVersion  string  `json:"api_version,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// AssistantSession represents one assistant conversation and its tool scope.
type AssistantSession struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	ProviderID       string    `json:"provider_id"`
	SystemPrompt     string    `json:"system_prompt"`
	ActiveTools      []string  `json:"active_tools,omitempty"`
	PendingApprovals []string  `json:"pending_approvals,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TokenUsage is the canonical usage shape across providers.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TurnMetadata is the canonical metadata shape attached to a turn. Provider
// replies of any backend are mapped into this one shape; only the Provider
// discriminator differs between backends for equivalent replies.
type TurnMetadata struct {
	Intent       string      `json:"intent,omitempty"`
	Mode         string      `json:"mode,omitempty"`
	Attachments  []string    `json:"attachments,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	References   []string    `json:"references,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Turn is a single conversation turn. Turns are immutable once appended and
// strictly ordered; non-system roles never repeat consecutively.
type Turn struct {
	Role     Role         `json:"role"`
	Content  string       `json:"content"`
	Metadata TurnMetadata `json:"metadata"`
}

// AssistantReply is the canonical, backend-agnostic reply consumed when an
// assistant turn is appended. Per-provider mappers produce this shape.
type AssistantReply struct {
	Provider     string      `json:"provider"`
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	References   []string    `json:"references,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}
