package anthropic

import "time"

// defaultModel is the model used when none is specified.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultAPIKeyEnv is read when api_key is empty.
const defaultAPIKeyEnv = "ANTHROPIC_API_KEY"

// defaultTimeout is the HTTP response-header timeout applied to the
// underlying transport. Streaming responses are not affected once the
// first byte arrives.
const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}
