package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string
	AdminToken      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes bounds request bodies on /api routes.
	MaxBodyBytes int64
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Streamed replies can run for minutes; the chat handler is bounded by
	// the request context instead.
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}
