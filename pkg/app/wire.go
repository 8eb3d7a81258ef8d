package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/mnemo/internal/chat"
	"github.com/flemzord/mnemo/internal/config"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/cron"
	"github.com/flemzord/mnemo/internal/gateway"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/usage"
)

// Service names looked up after the storage modules are provisioned.
const (
	serviceConversations = "conversation.store"
	serviceUsage         = "usage.repository"
	serviceAgentResolver = "usage.agent_resolver"
)

// memoryStoreModule is implemented by modules that hold a fact store.
type memoryStoreModule interface {
	MemoryStore() memory.Store
}

// BuildParams carries process-level inputs to Build.
type BuildParams struct {
	// DataDir is the root of module data. Default: DefaultDataDir().
	DataDir string

	// Version is reported by the health endpoint.
	Version string

	Logger *slog.Logger

	// Registry receives every collector. Default: a fresh registry with
	// the Go and process collectors.
	Registry *prometheus.Registry
}

// Runtime is a fully wired application. Its App owns the lifecycle of
// every module, including the scheduler and the gateway.
type Runtime struct {
	App           *core.App
	Conversations conversation.Store
	Chat          *chat.Service
	Memory        *memory.Service
	Context       *ctxengine.Compactor
	Generator     *provider.Failover
	Usage         *usage.Tracker
	Scheduler     *cron.Scheduler
	Gateway       *gateway.Gateway // nil when gateway.bind is empty
	Registry      *prometheus.Registry
	Logger        *slog.Logger
}

// Close stops every module. It is for runtimes that were never Run.
func (rt *Runtime) Close() {
	rt.App.Close()
}

// Build provisions the configured modules and wires the chat pipeline on
// top of them. cfg must already be validated.
func Build(cfg *config.Config, p BuildParams) (*Runtime, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dataDir := p.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	registry := p.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	appCtx := core.NewAppContext(logger, dataDir, DefaultWorkspace()).
		WithModuleConfigs(cfg.Modules)
	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	rt, err := wire(cfg, application, appCtx, registry, p.Version, logger)
	if err != nil {
		application.Close()
		return nil, err
	}
	return rt, nil
}

func wire(
	cfg *config.Config,
	application *core.App,
	appCtx *core.AppContext,
	registry *prometheus.Registry,
	version string,
	logger *slog.Logger,
) (*Runtime, error) {
	generator, err := wireGenerator(cfg, application, logger)
	if err != nil {
		return nil, err
	}

	convs, ok := core.Service[conversation.Store](appCtx, serviceConversations)
	if !ok {
		return nil, fmt.Errorf("app: module %s did not provide %s", cfg.Storage.Module, serviceConversations)
	}

	facts, err := memoryStore(cfg, application)
	if err != nil {
		return nil, err
	}

	repo, ok := core.Service[usage.Repository](appCtx, serviceUsage)
	if !ok {
		logger.Warn("no persistent usage repository, keeping usage in memory", "storage", cfg.Storage.Module)
		repo = usage.NewInMemoryRepository()
	}
	resolver, ok := core.Service[usage.AgentResolver](appCtx, serviceAgentResolver)
	if !ok {
		resolver = conversationAgents(convs)
	}
	tracker := usage.NewTracker(repo, resolver, usage.NewMetrics(registry), logger)

	summarizer, err := wireSummarizer(cfg.Context.SummaryCacheEntries, generator)
	if err != nil {
		return nil, err
	}
	engineCfg := ctxengine.ContextConfig{
		RetainRecent:        cfg.Context.RetainRecent,
		MaxContextTokens:    cfg.Context.MaxContextTokens,
		ReservedForReply:    cfg.Context.ReservedForReply,
		SummaryCacheEntries: cfg.Context.SummaryCacheEntries,
	}
	compactor := ctxengine.NewCompactor(convs, summarizer, tracker, engineCfg, logger)

	mem, err := memory.NewService(memory.ServiceConfig{
		Store:         facts,
		Generator:     generator,
		Usage:         tracker,
		MinConfidence: cfg.Memory.MinConfidence,
		TailTimeout:   cfg.Memory.TailTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	chatSvc, err := chat.NewService(chat.Config{
		Conversations: convs,
		Context:       compactor,
		Assembler:     ctxengine.NewContextAssembler(nil, engineCfg),
		Memory:        mem,
		Generator:     generator,
		Usage:         tracker,
		SystemPrompt:  cfg.Generator.SystemPrompt,
		MemoryTopN:    cfg.Memory.TopN,
		Naming:        cfg.Generator.NamingEnabled(),
		PostTimeout:   cfg.Memory.TailTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(&cron.UsageRetentionJob{
		Pruner:       repo,
		Retention:    cfg.Usage.Retention,
		ScheduleExpr: cfg.Usage.Schedule,
		Logger:       logger,
	}); err != nil {
		return nil, err
	}

	rt := &Runtime{
		App:           application,
		Conversations: convs,
		Chat:          chatSvc,
		Memory:        mem,
		Context:       compactor,
		Generator:     generator,
		Usage:         tracker,
		Scheduler:     scheduler,
		Registry:      registry,
		Logger:        logger,
	}

	if cfg.Gateway.Bind == "" {
		logger.Info("gateway disabled")
		application.AppendModule("cron", scheduler)
		return rt, nil
	}

	limiter := security.NewRateLimiter(cfg.Gateway.RateLimit)
	if err := scheduler.RegisterJob(&cron.RateLimitSweepJob{Limiter: limiter, Logger: logger}); err != nil {
		return nil, err
	}
	application.AppendModule("cron", scheduler)

	audit, err := wireAudit(cfg, application, logger)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(gateway.Options{
		Config: gateway.Config{
			Bind:       cfg.Gateway.Bind,
			AdminToken: cfg.Gateway.AdminToken,
		},
		Chat:          chatSvc,
		Facts:         mem,
		Conversations: convs,
		Context:       compactor,
		Providers:     generator,
		Gatherer:      registry,
		Registerer:    registry,
		RateLimiter:   limiter,
		Audit:         audit,
		Version:       version,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	application.AppendModule("gateway.http", gw)
	rt.Gateway = gw
	return rt, nil
}

// wireGenerator chains the configured provider modules into a failover
// generator, in configuration order.
func wireGenerator(cfg *config.Config, application *core.App, logger *slog.Logger) (*provider.Failover, error) {
	entries := make([]provider.FailoverEntry, 0, len(cfg.Generator.Providers))
	for _, id := range cfg.Generator.Providers {
		mod, ok := application.Module(id)
		if !ok {
			return nil, fmt.Errorf("app: provider module %s is not loaded", id)
		}
		p, ok := mod.(provider.Provider)
		if !ok {
			return nil, fmt.Errorf("app: module %s is not a provider", id)
		}
		entries = append(entries, provider.FailoverEntry{Name: id, Provider: p})
	}
	return provider.NewFailover(entries, logger)
}

func memoryStore(cfg *config.Config, application *core.App) (memory.Store, error) {
	mod, ok := application.Module(cfg.Memory.Store)
	if !ok {
		return nil, fmt.Errorf("app: memory store module %s is not loaded", cfg.Memory.Store)
	}
	holder, ok := mod.(memoryStoreModule)
	if !ok {
		return nil, fmt.Errorf("app: module %s does not provide a memory store", cfg.Memory.Store)
	}
	store := holder.MemoryStore()
	if store == nil {
		return nil, fmt.Errorf("app: module %s has no memory store", cfg.Memory.Store)
	}
	return store, nil
}

// conversationAgents resolves a conversation's agent by reading it from
// the conversation store.
func conversationAgents(convs conversation.Store) usage.AgentResolver {
	return usage.AgentResolverFunc(func(ctx context.Context, conversationID string) (string, error) {
		c, err := convs.GetConversation(ctx, conversationID)
		if err != nil {
			return "", err
		}
		return c.AgentID, nil
	})
}

// wireSummarizer wraps the generator summarizer in a cache unless entries
// is negative.
func wireSummarizer(entries int, generator provider.Provider) (ctxengine.Summarizer, error) {
	base := ctxengine.NewGeneratorSummarizer(generator)
	if entries < 0 {
		return base, nil
	}
	if entries == 0 {
		entries = ctxengine.DefaultSummaryCacheEntries
	}
	cached, err := ctxengine.NewCachedSummarizer(base, entries)
	if err != nil {
		return nil, fmt.Errorf("app: summary cache: %w", err)
	}
	return cached, nil
}

// wireAudit builds the admin audit logger. Events always reach the process
// log; with gateway.audit_log set they are also appended to that file.
func wireAudit(cfg *config.Config, application *core.App, logger *slog.Logger) (*security.AuditLogger, error) {
	auditLog := logger.With("component", "audit")
	redactor := security.NewRedactor()
	redactor.AddLiterals(cfg.Secrets()...)

	acfg := security.AuditLoggerConfig{
		Redactor: redactor,
		OnEvent: func(e security.AuditEvent) {
			auditLog.Info("audit event",
				"type", string(e.Type),
				"user_id", e.UserID,
				"conversation_id", e.ConversationID,
				"fact_id", e.FactID,
				"remote_addr", e.RemoteAddr,
			)
		},
	}

	if path := cfg.Gateway.AuditLog; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("app: audit log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("app: open audit log: %w", err)
		}
		acfg.Writer = f
		application.AppendModule("audit.file", &fileModule{file: f})
	}
	return security.NewAuditLogger(acfg), nil
}

// fileModule closes a file when the application stops.
type fileModule struct {
	file *os.File
}

// Interface guards.
var (
	_ core.Module  = (*fileModule)(nil)
	_ core.Stopper = (*fileModule)(nil)
)

func (m *fileModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "audit.file"}
}

func (m *fileModule) Stop(context.Context) error {
	if err := m.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("app: close audit log: %w", err)
	}
	return nil
}
