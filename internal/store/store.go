package store

import (
	"context"
	"fmt"

	"github.com/joescharf/ait/internal/models"
)

// Store loads and saves the whole issue document as a single unit.
//
// Implementations must make Save atomic: a concurrent or later Load observes
// either the previous document or the new one, never a partial write.
type Store interface {
	// Load returns the persisted document, or an empty one if nothing has
	// been saved yet.
	Load(ctx context.Context) (*models.Document, error)

	// Save durably replaces the persisted document.
	Save(ctx context.Context, doc *models.Document) error

	// Location describes where the document lives (file path or database path).
	Location() string

	Close() error
}

// Supported backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend    string
	Path       string // JSON document path for the file backend
	SQLitePath string // database path for the sqlite backend
}

// Open creates the Store described by cfg. The sqlite backend is migrated
// before it is returned.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend requires a data file path")
		}
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be %s or %s)", cfg.Backend, BackendFile, BackendSQLite)
	}
}
