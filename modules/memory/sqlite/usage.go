package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/usage"
)

// UsageRepository implements usage.Repository.
type UsageRepository struct {
	db *sql.DB
}

// Compile-time interface guard.
var _ usage.Repository = (*UsageRepository)(nil)

// SaveUsage implements usage.Repository.
func (r *UsageRepository) SaveUsage(ctx context.Context, rec usage.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage (id, operation, input_tokens, output_tokens, total_tokens,
		                   response_time_ns, conversation_id, message_id, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Operation), rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		int64(rec.ResponseTime), rec.ConversationID, rec.MessageID, rec.AgentID,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save usage: %w", err)
	}
	return nil
}

// ListUsage implements usage.Repository. An empty conversationID lists
// every record.
func (r *UsageRepository) ListUsage(ctx context.Context, conversationID string) ([]usage.Record, error) {
	query := `SELECT id, operation, input_tokens, output_tokens, total_tokens,
	                 response_time_ns, conversation_id, message_id, agent_id, created_at
	          FROM usage`
	var args []any
	if conversationID != "" {
		query += " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []usage.Record
	for rows.Next() {
		var (
			rec       usage.Record
			op        string
			respNanos int64
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &op, &rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens,
			&respNanos, &rec.ConversationID, &rec.MessageID, &rec.AgentID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan usage: %w", err)
		}
		rec.Operation = usage.Operation(op)
		rec.ResponseTime = time.Duration(respNanos)
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list usage rows: %w", err)
	}
	return records, nil
}

// PruneUsage implements usage.Repository.
func (r *UsageRepository) PruneUsage(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM usage WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}
