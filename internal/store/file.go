package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joescharf/ait/internal/models"
)

// Rename retry settings. Only Windows retries: another process holding a
// handle on the target makes the rename fail transiently there.
const (
	renameMaxRetries   = 3
	renameInitialDelay = 100 * time.Millisecond
)

// FileStore keeps the document as a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path. Nothing is touched on disk
// until the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the backing file path.
func (s *FileStore) Location() string { return s.path }

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error { return nil }

// Load reads the backing file. A missing file yields an empty document.
func (s *FileStore) Load(_ context.Context) (*models.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &models.Document{Issues: []*models.Issue{}}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	return decodeDocument(data, s.path)
}

// Save writes the document to a temporary file next to the target and
// renames it into place. The temporary file never outlives the call.
func (s *FileStore) Save(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "create directory for", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return &IOError{Op: "create temp file for", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return &IOError{Op: "chmod", Path: tmpPath, Err: err}
	}

	if err := renameWithRetry(ctx, tmpPath, s.path); err != nil {
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}
	renamed = true

	syncDir(dir)
	return nil
}

func renameWithRetry(ctx context.Context, from, to string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = renameInitialDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, renameMaxRetries), ctx)

	return backoff.Retry(func() error {
		err := os.Rename(from, to)
		if err != nil && runtime.GOOS != "windows" {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// syncDir flushes the directory entry for the rename. Best-effort: not every
// platform supports syncing a directory handle.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
