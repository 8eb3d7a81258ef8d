package ctxengine

import (
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
)

// AssemblyRequest contains the inputs for prompt assembly.
type AssemblyRequest struct {
	// SystemPrompt is the agent's base instructions.
	SystemPrompt string

	// Memory is the formatted memory block. Empty means no injection.
	Memory string

	// Context is the bounded context: an optional leading summary turn
	// followed by the retained turns, oldest first.
	Context []conversation.Turn
}

// AssemblyResult is the output of prompt assembly.
type AssemblyResult struct {
	// Messages is the full message list for the generator.
	Messages []provider.LLMMessage

	// Budget is the final token budget breakdown.
	Budget ContextBudget

	// Dropped counts retained turns removed to fit the window.
	Dropped int
}

// ContextAssembler builds the generator prompt for a turn, trimming the
// oldest retained turns when the window is too small.
type ContextAssembler struct {
	estimator TokenEstimator
	config    ContextConfig
}

// NewContextAssembler creates a ContextAssembler with the given estimator and config.
func NewContextAssembler(estimator TokenEstimator, cfg ContextConfig) *ContextAssembler {
	if estimator == nil {
		estimator = NewCharEstimator(0)
	}
	return &ContextAssembler{
		estimator: estimator,
		config:    cfg.withDefaults(),
	}
}

// Assemble builds the message list in this order: system prompt, memory
// block, summary, then the retained turns. The system prompt, memory block,
// summary and the latest turn are never trimmed.
func (a *ContextAssembler) Assemble(req AssemblyRequest) AssemblyResult {
	var fixed []provider.LLMMessage
	budget := ContextBudget{
		WindowSize: a.config.MaxContextTokens,
		Reserved:   a.config.ReservedForReply,
	}

	if req.SystemPrompt != "" {
		msg := provider.LLMMessage{Role: provider.MessageRoleSystem, Content: req.SystemPrompt}
		fixed = append(fixed, msg)
		budget.System = EstimateMessages(a.estimator, []provider.LLMMessage{msg})
	}
	if req.Memory != "" {
		msg := provider.LLMMessage{Role: provider.MessageRoleSystem, Content: req.Memory}
		fixed = append(fixed, msg)
		budget.Memory = EstimateMessages(a.estimator, []provider.LLMMessage{msg})
	}

	var summary []provider.LLMMessage
	turns := req.Context
	if len(turns) > 0 && turns[0].IsSummary {
		summary = append(summary, toMessage(turns[0]))
		turns = turns[1:]
	}

	history := make([]provider.LLMMessage, 0, len(turns))
	for _, t := range turns {
		history = append(history, toMessage(t))
	}

	historyBudget := max(budget.WindowSize-budget.System-budget.Memory-budget.Reserved-EstimateMessages(a.estimator, summary), 0)
	trimmed := a.trimHistory(history, historyBudget)

	budget.History = EstimateMessages(a.estimator, summary) + EstimateMessages(a.estimator, trimmed)

	messages := make([]provider.LLMMessage, 0, len(fixed)+len(summary)+len(trimmed))
	messages = append(messages, fixed...)
	messages = append(messages, summary...)
	messages = append(messages, trimmed...)

	return AssemblyResult{
		Messages: messages,
		Budget:   budget,
		Dropped:  len(history) - len(trimmed),
	}
}

// trimHistory removes the oldest messages (preserving the most recent)
// until the history fits within the token budget.
func (a *ContextAssembler) trimHistory(history []provider.LLMMessage, budget int) []provider.LLMMessage {
	start := 0
	tokens := EstimateMessages(a.estimator, history)
	for tokens > budget && start < len(history)-1 {
		tokens -= EstimateMessages(a.estimator, history[start:start+1])
		start++
	}
	return history[start:]
}

func toMessage(t conversation.Turn) provider.LLMMessage {
	role := provider.MessageRoleUser
	switch t.Role {
	case conversation.RoleAssistant:
		role = provider.MessageRoleAssistant
	case conversation.RoleSystem:
		role = provider.MessageRoleSystem
	}
	return provider.LLMMessage{Role: role, Content: t.Content}
}
