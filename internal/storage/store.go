// Package storage persists story records.
//
// Two backends implement [Store]: a JSONL table (the default, one
// human-readable file) and SQLite. Both return stories scoped to a project
// and expose the file they write to so it can be watched for changes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/ksid"
	"github.com/maruel/storyfile/internal/story"
)

var (
	// ErrNotFound is returned when a story does not exist in the project.
	ErrNotFound = errors.New("story not found")
	// ErrProjectRequired is returned when an operation has no project.
	ErrProjectRequired = errors.New("project is required")

	errIntentRequired = errors.New("intent is required")
)

// Backend names accepted by [Open].
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Store is the story persistence layer.
type Store interface {
	// Create stores a new story and returns it with its assigned ID.
	Create(ctx context.Context, project, intent string, utterances []string) (*story.Story, error)
	// Stories returns all stories of a project in ID order.
	Stories(ctx context.Context, project string) ([]*story.Story, error)
	// Projects returns the names of projects having at least one story, sorted.
	Projects(ctx context.Context) ([]string, error)
	// Update replaces the intent and utterances of a story.
	Update(ctx context.Context, project string, id ksid.ID, intent string, utterances []string) (*story.Story, error)
	// Delete removes a story.
	Delete(ctx context.Context, project string, id ksid.ID) error
	// Reload picks up changes written to Path by other processes.
	Reload(ctx context.Context) error
	// Path returns the file the store writes to.
	Path() string
	Close() error
}

var (
	_ Store = (*JSONLStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open opens the store of the given backend inside dataDir.
func Open(ctx context.Context, backend, dataDir string) (Store, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	switch backend {
	case BackendJSONL, "":
		return NewJSONLStore(filepath.Join(dbDir, "stories.jsonl"))
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dbDir, "stories.sqlite"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func checkFields(project, intent string) error {
	if project == "" {
		return ErrProjectRequired
	}
	if intent == "" {
		return errIntentRequired
	}
	return nil
}

func cloneUtterances(u []string) []string {
	out := make([]string, len(u))
	copy(out, u)
	return out
}
