package conversation

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/provider"
)

func TestNormalizeRejectsEmptyReply(t *testing.T) {
	_, err := Normalize(nil)
	require.Error(t, err)

	_, err = Normalize(&provider.Reply{})
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
}

func TestNormalizeOpenAIReply(t *testing.T) {
	reply := &provider.Reply{OpenAI: &provider.OpenAIReply{
		ChatCompletionResponse: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "done"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		References: []string{"contexts/features/FEAT-1.yaml"},
	}}

	got, err := Normalize(reply)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAzureOpenAI, got.Provider)
	assert.Equal(t, "done", got.Content)
	assert.Equal(t, "stop", got.FinishReason)
	assert.Equal(t, []string{"contexts/features/FEAT-1.yaml"}, got.References)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 15, got.Usage.TotalTokens)
}

// Two backends returning semantically equivalent replies must yield turns
// identical in content and metadata except for the provider discriminator.
func TestEquivalentRepliesDifferOnlyInProvider(t *testing.T) {
	openaiReply := &provider.Reply{OpenAI: &provider.OpenAIReply{
		ChatCompletionResponse: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "the impact is limited to US-12301"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 42, CompletionTokens: 7, TotalTokens: 49},
		},
		References: []string{"contexts/userstories/US-12301.yaml"},
	}}
	ollamaReply := &provider.Reply{Ollama: &provider.OllamaReply{
		Model:           "llama3",
		Message:         provider.OllamaMessage{Role: "assistant", Content: "the impact is limited to US-12301"},
		Done:            true,
		DoneReason:      "stop",
		PromptEvalCount: 42,
		EvalCount:       7,
		References:      []string{"contexts/userstories/US-12301.yaml"},
	}}

	m := NewManagerWithClock(fixedClock())
	timeline, err := m.AppendUserTurn(m.InitialiseConversation(Config{}), "what is the impact?", UserTurnMetadata{})
	require.NoError(t, err)

	fromOpenAI, err := Normalize(openaiReply)
	require.NoError(t, err)
	fromOllama, err := Normalize(ollamaReply)
	require.NoError(t, err)

	openaiTimeline, err := m.AppendAssistantResponse(timeline, fromOpenAI)
	require.NoError(t, err)
	ollamaTimeline, err := m.AppendAssistantResponse(timeline, fromOllama)
	require.NoError(t, err)

	a := openaiTimeline[len(openaiTimeline)-1]
	b := ollamaTimeline[len(ollamaTimeline)-1]
	assert.Equal(t, domain.ProviderAzureOpenAI, a.Metadata.Provider)
	assert.Equal(t, domain.ProviderOllama, b.Metadata.Provider)

	a.Metadata.Provider = ""
	b.Metadata.Provider = ""
	assert.Equal(t, a, b)
}
