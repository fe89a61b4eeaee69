package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/contextkit/orchestrator/internal/domain"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllamaClient builds a client from a session provider config.
func NewOllamaClient(cfg domain.ProviderConfig) *OllamaClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &OllamaClient{
		endpoint: endpoint,
		model:    model,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// Complete sends the conversation and returns the backend reply shape.
func (c *OllamaClient) Complete(ctx context.Context, systemPrompt string, turns []domain.Turn) (*Reply, error) {
	messages := make([]OllamaMessage, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, OllamaMessage{Role: string(domain.RoleSystem), Content: systemPrompt})
	}
	for _, turn := range turns {
		if turn.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, OllamaMessage{Role: string(turn.Role), Content: turn.Content})
	}

	body, err := json.Marshal(ollamaChatRequest{Model: c.model, Messages: messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request returned status %d", resp.StatusCode)
	}

	var reply OllamaReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode chat reply: %w", err)
	}
	return &Reply{Ollama: &reply}, nil
}

// New builds the client for a provider config. An empty provider id yields
// the deterministic mock.
func New(cfg domain.ProviderConfig, apiKey string) (Client, error) {
	switch cfg.Provider {
	case domain.ProviderAzureOpenAI, "openai":
		return NewOpenAIClient(cfg, apiKey), nil
	case domain.ProviderOllama:
		return NewOllamaClient(cfg), nil
	case "", "mock":
		return MockClient{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
