package core

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of modules.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules instantiates, provisions, and validates all modules for the
// given IDs in order. If any step fails, already-loaded modules are cleaned up.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.cleanup()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		info := mod.ModuleInfo()
		a.modules = append(a.modules, moduleInstance{
			id:     info.ID,
			module: mod,
		})
		a.logger.Info("module loaded", "module", string(info.ID))
	}
	return nil
}

// Start starts all loaded modules that implement Starter, in order.
// If any Start() fails, already-started modules are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			// Provisioned modules are live; Stop must still reach them.
			mi.started = true
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.stopModules(i - 1)
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops all started modules in reverse order with a timeout.
func (a *App) Stop() {
	a.stopModules(len(a.modules) - 1)
}

func (a *App) stopModules(fromIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := fromIndex; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started {
			continue
		}
		if s, ok := mi.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(mi.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop error", "module", string(mi.id), "error", err)
			}
		}
		mi.started = false
	}
}

func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		mi := &a.modules[i]
		if s, ok := mi.module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

// Close stops every loaded module whether or not it was started. It is
// used by one-shot commands that provision modules without running them.
func (a *App) Close() {
	a.cleanup()
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for i := range a.modules {
		if string(a.modules[i].id) == id {
			return a.modules[i].module, true
		}
	}
	return nil, false
}

// AppendModule adds an already-built module to the lifecycle. It is started
// after the loaded modules and stopped before them.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, moduleInstance{id: id, module: mod})
	a.logger.Info("module appended", "module", string(id))
}

// Run starts all modules and blocks until ctx is done or a shutdown signal
// is received, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
