package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/usage"
)

// ConversationStore implements conversation.Store. It also resolves the
// agent owning a conversation for usage attribution.
type ConversationStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time interface guards.
var (
	_ conversation.Store  = (*ConversationStore)(nil)
	_ usage.AgentResolver = (*ConversationStore)(nil)
)

// CreateConversation implements conversation.Store.
func (s *ConversationStore) CreateConversation(ctx context.Context, c conversation.Conversation) (conversation.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, agent_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.AgentID, c.Title, formatTime(c.CreatedAt),
	)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("sqlite: create conversation: %w", err)
	}
	return c, nil
}

// GetConversation implements conversation.Store.
func (s *ConversationStore) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	var (
		c         conversation.Conversation
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_id, title, created_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.AgentID, &c.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Conversation{}, fmt.Errorf("%w: %s", conversation.ErrConversationNotFound, id)
		}
		return conversation.Conversation{}, fmt.Errorf("sqlite: get conversation: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return conversation.Conversation{}, err
	}
	return c, nil
}

// SetTitle implements conversation.Store.
func (s *ConversationStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("sqlite: set title: %w", err)
	}
	return expectOne(res, conversation.ErrConversationNotFound, id)
}

// DeleteConversation implements conversation.Store.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete turns: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	if err := expectOne(res, conversation.ErrConversationNotFound, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendTurn implements conversation.Store.
func (s *ConversationStore) AppendTurn(ctx context.Context, t conversation.Turn) (conversation.Turn, error) {
	if !t.Role.Valid() || t.IsSummary {
		return conversation.Turn{}, fmt.Errorf("%w: role %q summary=%v", conversation.ErrInvalidTurn, t.Role, t.IsSummary)
	}
	s.fill(&t)
	if err := s.insertTurn(ctx, t); err != nil {
		return conversation.Turn{}, err
	}
	return t, nil
}

// Turns implements conversation.Store.
func (s *ConversationStore) Turns(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, is_summary, created_at, updated_at
		FROM turns
		WHERE conversation_id = ? AND is_summary = 0
		ORDER BY created_at ASC, seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []conversation.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list turns rows: %w", err)
	}
	return turns, nil
}

// Summary implements conversation.Store.
func (s *ConversationStore) Summary(ctx context.Context, conversationID string) (conversation.Turn, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, role, content, is_summary, created_at, updated_at
		FROM turns
		WHERE conversation_id = ? AND is_summary = 1
		ORDER BY updated_at DESC, seq DESC
		LIMIT 1`,
		conversationID,
	)
	t, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Turn{}, false, nil
		}
		return conversation.Turn{}, false, err
	}
	return t, true, nil
}

// SaveSummary implements conversation.Store.
func (s *ConversationStore) SaveSummary(ctx context.Context, t conversation.Turn) (conversation.Turn, error) {
	t.IsSummary = true
	if t.Role == "" {
		t.Role = conversation.RoleSystem
	}
	s.fill(&t)

	res, err := s.db.ExecContext(ctx, `
		UPDATE turns SET content = ?, updated_at = ?
		WHERE id = ? AND conversation_id = ? AND is_summary = 1`,
		t.Content, formatTime(t.UpdatedAt), t.ID, t.ConversationID,
	)
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("sqlite: update summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return t, nil
	}

	if err := s.insertTurn(ctx, t); err != nil {
		return conversation.Turn{}, err
	}
	return t, nil
}

// ResolveAgent implements usage.AgentResolver.
func (s *ConversationStore) ResolveAgent(ctx context.Context, conversationID string) (string, error) {
	var agentID string
	err := s.db.QueryRowContext(ctx,
		"SELECT agent_id FROM conversations WHERE id = ?", conversationID,
	).Scan(&agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", usage.ErrAgentNotFound, conversationID)
		}
		return "", fmt.Errorf("sqlite: resolve agent: %w", err)
	}
	if agentID == "" {
		return "", fmt.Errorf("%w: %s", usage.ErrAgentNotFound, conversationID)
	}
	return agentID, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *ConversationStore) ListConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, agent_id, title, created_at
		FROM conversations WHERE user_id = ?
		ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []conversation.Conversation
	for rows.Next() {
		var (
			c         conversation.Conversation
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.AgentID, &c.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list conversations rows: %w", err)
	}
	return out, nil
}

func (s *ConversationStore) insertTurn(ctx context.Context, t conversation.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin turn tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE id = ?", t.ConversationID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", conversation.ErrConversationNotFound, t.ConversationID)
	}

	isSummary := 0
	if t.IsSummary {
		isSummary = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, conversation_id, seq, role, content, is_summary, created_at, updated_at)
		VALUES (?, ?, COALESCE((SELECT MAX(seq) FROM turns WHERE conversation_id = ?), 0) + 1,
		        ?, ?, ?, ?, ?)`,
		t.ID, t.ConversationID, t.ConversationID,
		string(t.Role), t.Content, isSummary,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert turn: %w", err)
	}
	return tx.Commit()
}

func (s *ConversationStore) fill(t *conversation.Turn) {
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() || t.IsSummary {
		t.UpdatedAt = now
	}
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(s scanner) (conversation.Turn, error) {
	var (
		t                    conversation.Turn
		role                 string
		isSummary            int
		createdAt, updatedAt string
	)
	if err := s.Scan(&t.ID, &t.ConversationID, &role, &t.Content, &isSummary, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("sqlite: scan turn: %w", err)
	}
	t.Role = conversation.Role(role)
	t.IsSummary = isSummary != 0

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, err
	}
	return t, nil
}

func expectOne(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
