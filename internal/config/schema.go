// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for mnemo.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/telemetry"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultStorageModule  = "memory.sqlite"
	DefaultMinConfidence  = 0.3
	DefaultMemoryTopN     = 10
	DefaultTailTimeout    = 30 * time.Second
	DefaultRetainRecent   = 5
	DefaultUsageRetention = 90 * 24 * time.Hour
	DefaultUsageSchedule  = "17 3 * * *"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	Generator GeneratorConfig  `yaml:"generator"`
	Storage   StorageConfig    `yaml:"storage"`
	Memory    MemoryConfig     `yaml:"memory"`
	Context   ContextConfig    `yaml:"context"`
	Usage     UsageConfig      `yaml:"usage"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Log       LogConfig        `yaml:"log"`
}

// GeneratorConfig selects the language model backends.
type GeneratorConfig struct {
	// Providers lists provider module IDs in failover order.
	Providers []string `yaml:"providers"`

	// SystemPrompt leads every chat prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Naming asks the generator to title new conversations. Default: true.
	Naming *bool `yaml:"naming"`
}

// NamingEnabled reports whether conversation naming is on.
func (g GeneratorConfig) NamingEnabled() bool {
	return g.Naming == nil || *g.Naming
}

// StorageConfig names the module holding conversations and usage records.
type StorageConfig struct {
	Module string `yaml:"module"`
}

// MemoryConfig tunes the long-term memory.
type MemoryConfig struct {
	// Store is the module providing the fact store. Default: storage.module.
	Store string `yaml:"store"`

	// MinConfidence is the strict write threshold for extracted facts.
	MinConfidence float64 `yaml:"min_confidence"`

	// TopN bounds facts injected into a prompt.
	TopN int `yaml:"top_n"`

	// TailTimeout bounds extraction and reconciliation after a reply.
	TailTimeout time.Duration `yaml:"tail_timeout"`
}

// ContextConfig tunes the context engine.
type ContextConfig struct {
	RetainRecent        int `yaml:"retain_recent"`
	MaxContextTokens    int `yaml:"max_context_tokens"`
	ReservedForReply    int `yaml:"reserved_for_reply"`
	SummaryCacheEntries int `yaml:"summary_cache_entries"`
}

// UsageConfig controls usage record retention.
type UsageConfig struct {
	// Retention is how long usage records are kept. Zero disables pruning.
	Retention time.Duration `yaml:"retention"`

	// Schedule is the cron expression of the pruning job.
	Schedule string `yaml:"schedule"`
}

// GatewayConfig configures the HTTP admin surface.
type GatewayConfig struct {
	// Bind is the listen address. Empty disables the gateway.
	Bind string `yaml:"bind"`

	// AdminToken is the bearer token every /api request must carry.
	AdminToken string `yaml:"admin_token"`

	// RateLimit bounds authentication attempts per address and chat
	// messages per user.
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	// AuditLog is a JSONL file receiving admin audit events. Empty keeps
	// audit events in the process log only.
	AuditLog string `yaml:"audit_log"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Storage.Module == "" {
		c.Storage.Module = DefaultStorageModule
	}
	if c.Memory.Store == "" {
		c.Memory.Store = c.Storage.Module
	}
	if c.Memory.MinConfidence == 0 {
		c.Memory.MinConfidence = DefaultMinConfidence
	}
	if c.Memory.TopN == 0 {
		c.Memory.TopN = DefaultMemoryTopN
	}
	if c.Memory.TailTimeout == 0 {
		c.Memory.TailTimeout = DefaultTailTimeout
	}
	if c.Context.RetainRecent == 0 {
		c.Context.RetainRecent = DefaultRetainRecent
	}
	if c.Usage.Retention == 0 {
		c.Usage.Retention = DefaultUsageRetention
	}
	if c.Usage.Schedule == "" {
		c.Usage.Schedule = DefaultUsageSchedule
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Secrets returns the configured values that must never reach the logs:
// the gateway admin token and every module's api_key.
func (c *Config) Secrets() []string {
	var out []string
	if c.Gateway.AdminToken != "" {
		out = append(out, c.Gateway.AdminToken)
	}
	for _, id := range Resolve(c) {
		node := c.Modules[id]
		var keyed struct {
			APIKey string `yaml:"api_key"`
		}
		if err := node.Decode(&keyed); err == nil && keyed.APIKey != "" {
			out = append(out, keyed.APIKey)
		}
	}
	return out
}
