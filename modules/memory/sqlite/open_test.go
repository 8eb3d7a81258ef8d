package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/flemzord/mnemo/modules/memory/sqlite"
)

func openTestStores(t *testing.T) *sqlite.Stores {
	t.Helper()

	stores, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	stores, err := sqlite.Open(context.Background(), sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = stores.Close() }()

	if err := stores.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), sqlite.Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := sqlite.Open(ctx, sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := first.Documents.Import(ctx, "The user is 35 years old.", nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	_ = first.Close()

	// Migration is idempotent and data survives.
	second, err := sqlite.Open(ctx, sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()

	docs, err := second.Documents.Search(ctx, "", nil, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Errorf("docs = %+v, want one with ID %s", docs, id)
	}
}
