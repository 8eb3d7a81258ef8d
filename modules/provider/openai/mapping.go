package openai

import (
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/mnemo/internal/provider"
)

// buildChatRequest creates a go-openai request from a CompletionRequest,
// letting request-level values override config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest, stream bool) goopenai.ChatCompletionRequest {
	cr := goopenai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: toMessages(req.Messages),
	}

	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		cr.Temperature = float32(*req.Temperature)
	case p.config.Temperature != nil:
		cr.Temperature = float32(*p.config.Temperature)
	}

	if stream {
		cr.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}
	return cr
}

// toMessages converts provider messages to go-openai messages. Roles map
// one to one.
func toMessages(msgs []provider.LLMMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = goopenai.ChatCompletionMessage{
			Role:    toRole(m.Role),
			Content: m.Content,
		}
	}
	return out
}

func toRole(r provider.MessageRole) string {
	switch r {
	case provider.MessageRoleSystem:
		return goopenai.ChatMessageRoleSystem
	case provider.MessageRoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

// fromResponse converts a go-openai response to a CompletionResponse.
func fromResponse(resp goopenai.ChatCompletionResponse) provider.CompletionResponse {
	var cr provider.CompletionResponse
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		cr.Content = choice.Message.Content
		cr.FinishReason = mapFinishReason(choice.FinishReason)
	}
	cr.Usage = fromUsage(resp.Usage)
	return cr
}

func fromUsage(u goopenai.Usage) provider.TokenUsage {
	return provider.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// mapFinishReason converts an OpenAI finish reason to a FinishReason.
// Unknown non-empty values pass through.
func mapFinishReason(reason goopenai.FinishReason) provider.FinishReason {
	switch reason {
	case "":
		return ""
	case goopenai.FinishReasonStop:
		return provider.FinishReasonStop
	case goopenai.FinishReasonLength:
		return provider.FinishReasonLength
	case goopenai.FinishReasonContentFilter:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(reason)
	}
}
