package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ait/internal/models"
)

func sampleDocument() *models.Document {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	picked := created.Add(time.Minute)
	return &models.Document{Issues: []*models.Issue{
		{
			ID:             "01JNQ7Z0000000000000000001",
			Title:          "Fix login",
			Description:    "Login broken",
			Classification: models.ClassificationBug,
			CreatedAt:      created,
			ModifiedAt:     picked,
			Status:         models.IssueStatusInProgress,
			History: []models.HistoryEntry{
				{Timestamp: created, Agent: "agentA", Action: `Issue created with classification "bug"`},
				{Timestamp: picked, Agent: "agentB", Action: "Issue picked up and set to in_progress"},
			},
			Comments: []models.Comment{},
		},
		{
			ID:             "01JNQ7Z0000000000000000002",
			Title:          "Dark mode",
			Classification: models.ClassificationFeature,
			CreatedAt:      created,
			ModifiedAt:     created,
			Status:         models.IssueStatusCreated,
			History:        []models.HistoryEntry{{Timestamp: created, Agent: "agentA", Action: "created"}},
			Comments:       []models.Comment{},
		},
	}}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "issues.json"))

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Issues)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	s := NewFileStore(path)
	ctx := context.Background()

	want := sampleDocument()
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Issues, 2)
	for i := range want.Issues {
		assert.Equal(t, want.Issues[i].ID, got.Issues[i].ID)
		assert.Equal(t, want.Issues[i].Status, got.Issues[i].Status)
		assert.Equal(t, want.Issues[i].Classification, got.Issues[i].Classification)
		assert.True(t, want.Issues[i].CreatedAt.Equal(got.Issues[i].CreatedAt))
		assert.True(t, want.Issues[i].ModifiedAt.Equal(got.Issues[i].ModifiedAt))
		assert.Len(t, got.Issues[i].History, len(want.Issues[i].History))
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "issues.json"))

	require.NoError(t, s.Save(context.Background(), sampleDocument()))
	require.NoError(t, s.Save(context.Background(), sampleDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "issues.json", entries[0].Name())
}

func TestFileStore_SaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "issues.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), &models.Document{}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStore_SaveWritesOriginalLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleDocument()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"issues": [`)
	assert.Contains(t, text, `"createdAt": "2025-03-01T12:00:00Z"`)
	assert.Contains(t, text, `"modifiedAt"`)
	assert.Contains(t, text, `"comments": []`)
}

func TestFileStore_SaveEmptyDocumentWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"issues": []}`, string(data))
}

func TestFileStore_SaveFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	// A directory occupying the target path makes the rename fail.
	path := filepath.Join(dir, "issues.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o755))

	s := NewFileStore(path)
	err := s.Save(context.Background(), sampleDocument())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "rename", ioErr.Op)

	// The temp file is cleaned up even on failure.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_SaveKeepsPreviousDocumentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	s := NewFileStore(path)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleDocument()))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Save(cancelled, &models.Document{})
	require.Error(t, err)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Issues, 2)
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"issues": [`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, path, decErr.Path)
}

func TestFileStore_LoadLegacyDocument(t *testing.T) {
	// Written by the earliest version: no comments key, millisecond timestamps,
	// "completed" used as a closing resolution.
	legacy := `{
  "issues": [
    {
      "id": "3b241101-e2bb-4255-8caf-4136c566a962",
      "title": "Old",
      "description": "from v1",
      "classification": "improvement",
      "createdAt": "2024-05-01T10:00:00.000Z",
      "status": "completed",
      "history": [
        {"timestamp": "2024-05-01T10:00:00.000Z", "agent": "a", "action": "Issue created with classification \"improvement\""}
      ]
    }
  ]
}`
	path := filepath.Join(t.TempDir(), "issues.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	doc, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Issues, 1)

	issue := doc.Issues[0]
	assert.Equal(t, models.IssueStatusCompleted, issue.Status)
	assert.NotNil(t, issue.Comments)
	assert.Empty(t, issue.Comments)
	assert.True(t, issue.ModifiedAt.Equal(issue.CreatedAt))
}

func TestFileStore_Location(t *testing.T) {
	s := NewFileStore("/data/issues.json")
	assert.Equal(t, "/data/issues.json", s.Location())
	assert.NoError(t, s.Close())
}
