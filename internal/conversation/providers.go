package conversation

import (
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/provider"
)

// Normalize maps a provider reply union into the canonical assistant reply.
// Each backend has its own mapping function; this is the only place where
// backend-specific reply shapes are interpreted.
func Normalize(reply *provider.Reply) (domain.AssistantReply, error) {
	switch {
	case reply == nil:
		return domain.AssistantReply{}, domain.NewError(domain.ErrCodeValidation, "provider reply is empty")
	case reply.OpenAI != nil:
		return mapOpenAIReply(reply.OpenAI), nil
	case reply.Ollama != nil:
		return mapOllamaReply(reply.Ollama), nil
	default:
		return domain.AssistantReply{}, domain.NewError(domain.ErrCodeValidation, "provider reply has no recognized variant")
	}
}

func mapOpenAIReply(r *provider.OpenAIReply) domain.AssistantReply {
	out := domain.AssistantReply{
		Provider:   domain.ProviderAzureOpenAI,
		References: r.References,
	}
	if len(r.Choices) > 0 {
		out.Content = r.Choices[0].Message.Content
		out.FinishReason = string(r.Choices[0].FinishReason)
	}
	if r.Usage.TotalTokens > 0 || r.Usage.PromptTokens > 0 || r.Usage.CompletionTokens > 0 {
		out.Usage = &domain.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return out
}

func mapOllamaReply(r *provider.OllamaReply) domain.AssistantReply {
	out := domain.AssistantReply{
		Provider:     domain.ProviderOllama,
		Content:      r.Message.Content,
		FinishReason: r.DoneReason,
		References:   r.References,
	}
	if r.PromptEvalCount > 0 || r.EvalCount > 0 {
		out.Usage = &domain.TokenUsage{
			PromptTokens:     r.PromptEvalCount,
			CompletionTokens: r.EvalCount,
			TotalTokens:      r.PromptEvalCount + r.EvalCount,
		}
	}
	return out
}
