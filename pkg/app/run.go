// Package app provides the entry point shared by the mnemo commands: it
// loads configuration, provisions the configured modules and wires the
// chat pipeline, memory subsystem, scheduler and HTTP gateway.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/telemetry"
)

// telemetryFlushTimeout bounds the final span flush on shutdown.
const telemetryFlushTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel and LogFormat override the log section of the config.
	LogLevel  string
	LogFormat string

	// LogOutput receives process logs. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := NewLogger(LoggerParams{
		Output:  params.LogOutput,
		Level:   firstNonEmpty(params.LogLevel, cfg.Log.Level),
		Format:  firstNonEmpty(params.LogFormat, cfg.Log.Format),
		Secrets: cfg.Secrets(),
	})
	if err != nil {
		return err
	}
	logger.Info("starting mnemo", "version", params.Version, "commit", params.Commit, "config", cfgPath)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	rt, err := Build(cfg, BuildParams{
		DataDir: params.DataDir,
		Version: params.Version,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return rt.App.Run(ctx)
}

// LoadConfig resolves, loads and validates the configuration. It returns
// the path actually used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mnemo/mnemo.yaml → ~/.config/mnemo/mnemo.yaml → ./mnemo.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mnemo", "mnemo.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mnemo", "mnemo.yaml"))
	}

	candidates = append(candidates, "mnemo.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/mnemo if set, otherwise ~/.local/share/mnemo per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "mnemo")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mnemo")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
