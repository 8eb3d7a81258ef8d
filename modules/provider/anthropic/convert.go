package anthropic

import (
	"log/slog"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/flemzord/mnemo/internal/provider"
)

// convertRequest transforms a CompletionRequest into Anthropic SDK parameters.
// Leading system messages move to the dedicated System field.
func convertRequest(req provider.CompletionRequest, cfg *Config, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, messages := splitSystemMessages(req.Messages)

	params := sdkanthropic.MessageNewParams{
		Model:    sdkanthropic.Model(cfg.Model),
		Messages: convertMessages(messages, logger),
		System:   system,
	}

	params.MaxTokens = int64(cfg.MaxTokens)
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}

	return params
}

// splitSystemMessages extracts leading system messages into Anthropic's System
// parameter format and returns the remaining messages.
func splitSystemMessages(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	var system []sdkanthropic.TextBlockParam
	var idx int
	for idx = 0; idx < len(msgs); idx++ {
		if msgs[idx].Role != provider.MessageRoleSystem {
			break
		}
		system = append(system, sdkanthropic.TextBlockParam{
			Text: msgs[idx].Content,
		})
	}
	return system, msgs[idx:]
}

// convertMessages maps user and assistant turns to SDK params. The Messages
// API has no inline system role, so non-leading system messages are dropped
// with a warning.
func convertMessages(msgs []provider.LLMMessage, logger *slog.Logger) []sdkanthropic.MessageParam {
	result := make([]sdkanthropic.MessageParam, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(msg.Content)))
		case provider.MessageRoleAssistant:
			result = append(result, sdkanthropic.NewAssistantMessage(sdkanthropic.NewTextBlock(msg.Content)))
		case provider.MessageRoleSystem:
			if logger != nil {
				logger.Warn("dropping non-leading system message", "index", i)
			}
		}
	}
	return result
}

// convertResponse joins the text blocks of msg into a CompletionResponse.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var parts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			parts = append(parts, v.Text)
		}
	}

	return provider.CompletionResponse{
		Content:      strings.Join(parts, "\n"),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// convertStopReason maps an Anthropic stop reason to a FinishReason.
func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
