// Package gateway provides the HTTP admin surface: health and metrics,
// per-user memory management, conversation inspection and a streamed chat
// endpoint. Everything under /api requires the admin bearer token.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/mnemo/internal/chat"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/security"
)

// Chat streams replies to user messages.
type Chat interface {
	Reply(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error)
}

// Facts is the memory surface exposed to administrators.
type Facts interface {
	CreateFact(ctx context.Context, userID string, in memory.FactInput) (memory.Fact, error)
	GetFact(ctx context.Context, userID, factID string) (memory.Fact, error)
	ListFacts(ctx context.Context, userID, category string) ([]memory.Fact, error)
	UpdateFact(ctx context.Context, userID, factID string, in memory.FactInput) (memory.Fact, error)
	DeleteFact(ctx context.Context, userID, factID string) error
	RetrieveMemoryContext(ctx context.Context, userID, utterance string, topN int) string
}

// BoundedContexter returns the bounded view of a conversation.
type BoundedContexter interface {
	GetBoundedContext(ctx context.Context, conversationID string) ([]conversation.Turn, error)
}

// ProviderStatus reports generator backend availability.
type ProviderStatus interface {
	Status() []provider.Status
}

// Options wires a Gateway. Chat, Facts, Conversations and Context are
// required; the rest is optional.
type Options struct {
	Config        Config
	Chat          Chat
	Facts         Facts
	Conversations conversation.Store
	Context       BoundedContexter
	Providers     ProviderStatus

	// Gatherer backs /metrics. Registerer receives the gateway's own
	// collectors. Either may be nil.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	RateLimiter *security.RateLimiter
	Audit       *security.AuditLogger
	Version     string
	Logger      *slog.Logger
}

// Gateway is the HTTP admin server. It joins the application lifecycle as
// a module so it starts after storage and stops before it.
type Gateway struct {
	config    Config
	chat      Chat
	facts     Facts
	convs     conversation.Store
	bounded   BoundedContexter
	providers ProviderStatus
	gatherer  prometheus.Gatherer
	metrics   *httpMetrics
	limiter   *security.RateLimiter
	audit     *security.AuditLogger
	version   string
	logger    *slog.Logger
	startedAt time.Time
	handler   http.Handler
	server    *http.Server
}

// Interface guards.
var (
	_ core.Module  = (*Gateway)(nil)
	_ core.Starter = (*Gateway)(nil)
	_ core.Stopper = (*Gateway)(nil)
)

// New validates opts and builds a Gateway. The router is built eagerly so
// Handler can be served without Start.
func New(opts Options) (*Gateway, error) {
	var errs []error
	if opts.Chat == nil {
		errs = append(errs, errors.New("gateway: chat service is required"))
	}
	if opts.Facts == nil {
		errs = append(errs, errors.New("gateway: memory service is required"))
	}
	if opts.Conversations == nil {
		errs = append(errs, errors.New("gateway: conversation store is required"))
	}
	if opts.Context == nil {
		errs = append(errs, errors.New("gateway: context engine is required"))
	}
	if opts.Config.AdminToken == "" {
		errs = append(errs, errors.New("gateway: admin token is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	cfg.defaults()

	g := &Gateway{
		config:    cfg,
		chat:      opts.Chat,
		facts:     opts.Facts,
		convs:     opts.Conversations,
		bounded:   opts.Context,
		providers: opts.Providers,
		gatherer:  opts.Gatherer,
		metrics:   newHTTPMetrics(opts.Registerer),
		limiter:   opts.RateLimiter,
		audit:     opts.Audit,
		version:   opts.Version,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
	g.handler = g.buildRouter()
	return g, nil
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "gateway.http"}
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start implements core.Starter. It binds the listener synchronously so
// address errors surface at startup, then serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.handler,
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
