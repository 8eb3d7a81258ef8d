package provider

// MessageRole identifies the sender of a message in a conversation.
type MessageRole string

// MessageRole constants for conversation messages.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage represents a single message in a conversation.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to a Provider.Complete or Provider.Stream call.
type CompletionRequest struct {
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

// CompletionResponse is the output of a Provider.Complete call.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// StreamChunk represents one piece of a streaming completion response.
type StreamChunk struct {
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}
