package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/memory"
)

// DocumentStore implements memory.Store with tag rows for exact-match
// filtering and an FTS5 index for ranking.
type DocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time interface guard.
var _ memory.Store = (*DocumentStore)(nil)

// Import implements memory.Store. Importing an existing ID replaces the
// document and its tags.
func (s *DocumentStore) Import(ctx context.Context, text string, tags memory.Tags) (string, error) {
	id := tags.Get(memory.TagFactID)
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocument(ctx, tx, id); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (id, text, created_at) VALUES (?, ?, ?)",
		id, text, formatTime(s.now()),
	); err != nil {
		return "", fmt.Errorf("sqlite: insert document: %w", err)
	}

	for _, key := range tags.Keys() {
		for _, value := range tags[key] {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO document_tags (doc_id, key, value) VALUES (?, ?, ?)",
				id, key, value,
			); err != nil {
				return "", fmt.Errorf("sqlite: insert tag: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: commit import: %w", err)
	}
	return id, nil
}

// Search implements memory.Store. Documents matching the filter but none of
// the query words are returned after the ranked ones.
func (s *DocumentStore) Search(ctx context.Context, query string, filter map[string]string, topN int) ([]memory.Document, error) {
	var (
		b    strings.Builder
		args []any
	)

	match := ftsQuery(query)
	if match != "" {
		b.WriteString(`SELECT d.id, d.text, COALESCE(m.score, 0) AS score
			FROM documents d
			LEFT JOIN (
				SELECT rowid, -bm25(documents_fts) AS score
				FROM documents_fts WHERE documents_fts MATCH ?
			) m ON m.rowid = d.rowid`)
		args = append(args, match)
	} else {
		b.WriteString(`SELECT d.id, d.text, 0 AS score FROM documents d`)
	}

	for i, key := range slices.Sorted(maps.Keys(filter)) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString("EXISTS (SELECT 1 FROM document_tags t WHERE t.doc_id = d.id AND t.key = ? AND t.value = ?)")
		args = append(args, key, filter[key])
	}

	b.WriteString(" ORDER BY score DESC, d.rowid DESC LIMIT ?")
	limit := topN
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []memory.Document
	for rows.Next() {
		var d memory.Document
		if err := rows.Scan(&d.ID, &d.Text, &d.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search documents rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("sqlite: close rows: %w", err)
	}

	if err := s.loadTags(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete implements memory.Store.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", id).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: check document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", memory.ErrFactNotFound, id)
	}
	if err := deleteDocument(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Len returns the total number of stored documents.
func (s *DocumentStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count documents: %w", err)
	}
	return count, nil
}

func (s *DocumentStore) loadTags(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}

	index := make(map[string]int, len(docs))
	args := make([]any, 0, len(docs))
	for i := range docs {
		docs[i].Tags = memory.Tags{}
		index[docs[i].ID] = i
		args = append(args, docs[i].ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docs)), ",")
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, key, value FROM document_tags WHERE doc_id IN ("+placeholders+") ORDER BY rowid",
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: load tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var docID, key, value string
		if err := rows.Scan(&docID, &key, &value); err != nil {
			return fmt.Errorf("sqlite: scan tag: %w", err)
		}
		if i, ok := index[docID]; ok {
			docs[i].Tags.Add(key, value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: load tags rows: %w", err)
	}
	return nil
}

func deleteDocument(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM document_tags WHERE doc_id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete document: %w", err)
	}
	return nil
}

// ftsQuery turns free text into an FTS5 query that ORs the quoted words,
// so punctuation in user input cannot break the MATCH syntax.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}
