// Package chromem provides an embedded vector store for facts, backed by
// chromem-go. It is an alternative to the SQLite fact store when
// similarity ranking matters more than durability.
package chromem

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	chromemgo "github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Embedding backends.
const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
)

// Config holds the chromem module configuration.
type Config struct {
	// Embedding selects the embedding backend: "hash" (default) or "openai".
	Embedding string `yaml:"embedding"`

	// Dimensions sizes the hash embedding. Defaults to 256.
	Dimensions int `yaml:"dimensions"`

	// APIKeyEnv names the environment variable holding the OpenAI key.
	// Defaults to OPENAI_API_KEY.
	APIKeyEnv string `yaml:"api_key_env"`
}

func (c *Config) defaults() {
	if c.Embedding == "" {
		c.Embedding = EmbeddingHash
	}
	if c.Dimensions == 0 {
		c.Dimensions = defaultHashDimensions
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Module registers a chromem-backed memory.Store.
type Module struct {
	config Config
	store  *Store
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.chromem",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chromem: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	var embed chromemgo.EmbeddingFunc
	switch m.config.Embedding {
	case EmbeddingHash:
		embed = HashEmbedding(m.config.Dimensions)
	case EmbeddingOpenAI:
		key := os.Getenv(m.config.APIKeyEnv)
		if key == "" {
			return fmt.Errorf("chromem: %s is not set", m.config.APIKeyEnv)
		}
		embed = chromemgo.NewEmbeddingFuncOpenAI(key, chromemgo.EmbeddingModelOpenAI3Small)
	default:
		return fmt.Errorf("chromem: unknown embedding %q", m.config.Embedding)
	}

	store, err := NewStore(embed)
	if err != nil {
		return err
	}
	m.store = store

	ctx.RegisterService("memory.store", store)
	m.logger.Info("chromem memory module provisioned", "embedding", m.config.Embedding)
	return nil
}

// MemoryStore returns the module's fact store.
func (m *Module) MemoryStore() memory.Store {
	return m.store
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.store == nil {
		return errors.New("chromem: store not provisioned")
	}
	return nil
}

// Store returns the provisioned store.
func (m *Module) Store() *Store {
	return m.store
}
