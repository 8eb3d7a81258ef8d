// Package sqlite implements the persistent storage module: conversations
// and their turns, the tag-indexed fact store, and usage records, all in a
// single database. It uses modernc.org/sqlite (pure Go, no CGO) with FTS5
// full-text search and WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Service names under which the module registers its stores.
const (
	ServiceConversations = "conversation.store"
	ServiceDocuments     = "memory.store"
	ServiceUsage         = "usage.repository"
	ServiceAgentResolver = "usage.agent_resolver"
)

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides the SQLite-backed stores to the rest of the application.
type Module struct {
	config Config
	stores *Stores
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	stores, err := Open(context.TODO(), m.config)
	if err != nil {
		return err
	}
	m.stores = stores

	ctx.RegisterService(ServiceConversations, stores.Conversations)
	ctx.RegisterService(ServiceAgentResolver, stores.Conversations)
	ctx.RegisterService(ServiceDocuments, stores.Documents)
	ctx.RegisterService(ServiceUsage, stores.Usage)

	m.logger.Info("sqlite storage module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	return m.stores.Ping(context.TODO())
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.stores == nil {
		return nil
	}
	m.logger.Info("sqlite storage module stopping")
	return m.stores.Close()
}

// Stores returns the stores backed by the module's database.
func (m *Module) Stores() *Stores {
	return m.stores
}

// MemoryStore returns the fact store, letting configuration select this
// module as the memory backend independently of the service registry.
func (m *Module) MemoryStore() memory.Store {
	return m.stores.Documents
}
