package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/usage"
)

func newTestModule(t *testing.T) (*Module, *core.AppContext) {
	t.Helper()

	dir := t.TempDir()
	m := &Module{
		config: Config{
			Path:        filepath.Join(dir, "test.db"),
			BusyTimeout: defaultBusyTimeout,
		},
	}
	m.config.defaults()

	ctx := core.NewAppContext(slog.Default(), dir, dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})

	return m, ctx
}

func TestModule_RegistersServices(t *testing.T) {
	_, ctx := newTestModule(t)

	if _, ok := core.Service[conversation.Store](ctx, ServiceConversations); !ok {
		t.Error("conversation store not registered")
	}
	if _, ok := core.Service[memory.Store](ctx, ServiceDocuments); !ok {
		t.Error("memory store not registered")
	}
	if _, ok := core.Service[usage.Repository](ctx, ServiceUsage); !ok {
		t.Error("usage repository not registered")
	}
	if _, ok := core.Service[usage.AgentResolver](ctx, ServiceAgentResolver); !ok {
		t.Error("agent resolver not registered")
	}
}

func TestModule_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	m := &Module{}
	if err := m.Provision(core.NewAppContext(nil, dir, dir)); err != nil {
		t.Fatalf("provision: %v", err)
	}
	defer func() { _ = m.Stop(context.Background()) }()

	if want := filepath.Join(dir, defaultDBFile); m.config.Path != want {
		t.Errorf("path = %q, want %q", m.config.Path, want)
	}
}

func TestModule_Configure(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("path: /tmp/x.db\nwal: false\nbusy_timeout: 100\n"), &node); err != nil {
		t.Fatal(err)
	}

	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if m.config.Path != "/tmp/x.db" || m.config.walEnabled() || m.config.BusyTimeout != 100 {
		t.Errorf("config = %+v", m.config)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := Config{BusyTimeout: -1}
	if err := c.validate(); err == nil {
		t.Error("expected error for negative busy_timeout")
	}
	c = Config{}
	c.defaults()
	if err := c.validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if !c.walEnabled() {
		t.Error("WAL should default to enabled")
	}
}

func TestModule_StopWithoutProvision(t *testing.T) {
	m := &Module{}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"peanuts", `"peanuts"`},
		{"Any peanut allergies?", `"any" OR "peanut" OR "allergies"`},
		{`"*():`, ""},
		{"café 42", `"café" OR "42"`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
