package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ait/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Issues)
	assert.Empty(t, doc.Issues)
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleDocument()))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Issues, 2)
	assert.Equal(t, "Fix login", doc.Issues[0].Title)
	assert.Equal(t, models.IssueStatusInProgress, doc.Issues[0].Status)
	assert.Len(t, doc.Issues[0].History, 2)
	assert.Equal(t, "Dark mode", doc.Issues[1].Title)
}

func TestSQLiteStore_SaveReplacesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleDocument()))

	smaller := sampleDocument()
	smaller.Issues = smaller.Issues[:1]
	require.NoError(t, s.Save(ctx, smaller))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Issues, 1)

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM issue_store").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLiteStore_LoadCorruptDocument(t *testing.T) {
	s := newTestStore(t)
	_, err := s.db.Exec(`INSERT INTO issue_store (id, document, issue_count, saved_at) VALUES (1, 'nope', 0, datetime('now'))`)
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestSQLiteStore_SaveAfterCloseIsIOError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Save(context.Background(), sampleDocument())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := Open(ctx, Config{Path: filepath.Join(dir, "issues.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fs)

	ss, err := Open(ctx, Config{Backend: BackendSQLite, SQLitePath: filepath.Join(dir, "ait.db")})
	require.NoError(t, err)
	defer ss.Close()
	assert.IsType(t, &SQLiteStore{}, ss)

	doc, err := ss.Load(ctx)
	require.NoError(t, err, "Open should migrate the database")
	assert.Empty(t, doc.Issues)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Backend: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")

	_, err = Open(ctx, Config{Backend: BackendFile})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendSQLite})
	assert.Error(t, err)
}
