package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Stores bundles the stores sharing one SQLite database.
type Stores struct {
	db *sql.DB

	Conversations *ConversationStore
	Documents     *DocumentStore
	Usage         *UsageRepository
}

// Open opens (creating if needed) the database at cfg.Path, migrates the
// schema and returns the stores backed by it. The caller must Close it.
//
// The pool is limited to a single connection: SQLite serialises writes
// and PRAGMAs then apply to every statement.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	cfg.defaults()
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Stores{
		db:            db,
		Conversations: &ConversationStore{db: db, now: time.Now},
		Documents:     &DocumentStore{db: db, now: time.Now},
		Usage:         &UsageRepository{db: db},
	}, nil
}

// Ping verifies the database and its FTS5 index are reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM documents_fts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Stores) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
