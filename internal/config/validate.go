package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/cron"
)

// Validate checks the structural validity of a Config after ApplyDefaults.
// It verifies the version, that every module ID is registered, that the
// generator, storage and memory sections reference configured modules of
// the right namespace, and the ranges of the tuning knobs. All problems are
// reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateGenerator(cfg)...)
	errs = append(errs, validateModuleRef(cfg, "storage.module", cfg.Storage.Module, "memory")...)
	errs = append(errs, validateModuleRef(cfg, "memory.store", cfg.Memory.Store, "memory")...)
	errs = append(errs, validateTuning(cfg)...)

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

func validateGenerator(cfg *Config) []error {
	if len(cfg.Generator.Providers) == 0 {
		return []error{errors.New("config: generator.providers must list at least one provider module")}
	}
	var errs []error
	seen := make(map[string]bool, len(cfg.Generator.Providers))
	for i, id := range cfg.Generator.Providers {
		field := fmt.Sprintf("generator.providers[%d]", i)
		if seen[id] {
			errs = append(errs, fmt.Errorf("config: %s: duplicate provider %q", field, id))
			continue
		}
		seen[id] = true
		errs = append(errs, validateModuleRef(cfg, field, id, "provider")...)
	}
	return errs
}

// validateModuleRef checks that id is configured under modules and lives
// in namespace.
func validateModuleRef(cfg *Config, field, id, namespace string) []error {
	if id == "" {
		return []error{fmt.Errorf("config: %s is required", field)}
	}
	var errs []error
	if ns := core.ModuleID(id).Namespace(); ns != namespace {
		errs = append(errs, fmt.Errorf("config: %s: module %q is not a %s module", field, id, namespace))
	}
	if _, ok := cfg.Modules[id]; !ok {
		errs = append(errs, fmt.Errorf("config: %s references module %q which has no entry under modules", field, id))
	}
	return errs
}

func validateTuning(cfg *Config) []error {
	var errs []error

	if c := cfg.Memory.MinConfidence; c < 0 || c >= 1 {
		errs = append(errs, fmt.Errorf("config: memory.min_confidence %v out of [0,1)", c))
	}
	if cfg.Memory.TopN < 0 {
		errs = append(errs, fmt.Errorf("config: memory.top_n must not be negative, got %d", cfg.Memory.TopN))
	}
	if cfg.Memory.TailTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: memory.tail_timeout must not be negative, got %s", cfg.Memory.TailTimeout))
	}

	ctx := cfg.Context
	for name, v := range map[string]int{
		"context.retain_recent":      ctx.RetainRecent,
		"context.max_context_tokens": ctx.MaxContextTokens,
		"context.reserved_for_reply": ctx.ReservedForReply,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: %s must not be negative, got %d", name, v))
		}
	}
	if ctx.MaxContextTokens > 0 && ctx.ReservedForReply >= ctx.MaxContextTokens {
		errs = append(errs, fmt.Errorf("config: context.reserved_for_reply (%d) must be below context.max_context_tokens (%d)",
			ctx.ReservedForReply, ctx.MaxContextTokens))
	}

	if cfg.Usage.Retention < 0 {
		errs = append(errs, fmt.Errorf("config: usage.retention must not be negative, got %s", cfg.Usage.Retention))
	}
	if err := cron.ValidateSchedule(cfg.Usage.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("config: usage.schedule: %w", err))
	}

	if cfg.Gateway.Bind != "" && cfg.Gateway.AdminToken == "" {
		errs = append(errs, errors.New("config: gateway.admin_token is required when gateway.bind is set"))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", cfg.Log.Format))
	}

	return errs
}
