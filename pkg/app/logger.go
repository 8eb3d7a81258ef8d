package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/mnemo/internal/security"
)

// LoggerParams configures the process logger.
type LoggerParams struct {
	Output io.Writer // default os.Stderr
	Level  string    // debug, info, warn, error
	Format string    // text or json

	// Secrets are masked wherever they appear in log output.
	Secrets []string
}

// NewLogger builds the process logger. Output goes through a redacting
// handler so configured secrets and well-known key formats never reach
// the logs.
func NewLogger(p LoggerParams) (*slog.Logger, error) {
	out := p.Output
	if out == nil {
		out = os.Stderr
	}

	var level slog.Level
	if p.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(p.Level))); err != nil {
			return nil, fmt.Errorf("app: log level: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	switch p.Format {
	case "", "text":
		inner = slog.NewTextHandler(out, opts)
	case "json":
		inner = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("app: unknown log format %q", p.Format)
	}

	redactor := security.NewRedactor()
	redactor.AddLiterals(p.Secrets...)
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}
