// Package ctxengine keeps a conversation's context bounded: it compacts old
// turns into a single summary turn and assembles the prompt sent to the
// generator within a token budget.
package ctxengine

// DefaultSummaryCacheEntries bounds the summary cache when unset.
const DefaultSummaryCacheEntries = 1000

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// RetainRecent is the number of most-recent turns kept verbatim.
	// Everything older is represented by the summary turn.
	RetainRecent int

	// MaxContextTokens is the prompt window the assembler trims history to.
	MaxContextTokens int

	// ReservedForReply is the number of tokens reserved for the model's response.
	ReservedForReply int

	// SummaryCacheEntries bounds the in-process summary cache.
	// A negative value disables the cache.
	SummaryCacheEntries int
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.RetainRecent <= 0 {
		cfg.RetainRecent = 5
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = 128_000
	}
	if cfg.ReservedForReply == 0 {
		cfg.ReservedForReply = 1024
	}
	if cfg.SummaryCacheEntries == 0 {
		cfg.SummaryCacheEntries = DefaultSummaryCacheEntries
	}
	return cfg
}
