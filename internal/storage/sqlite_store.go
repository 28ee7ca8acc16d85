// Implements Store on top of SQLite.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/storyfile/internal/story"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stories (
  id          INTEGER PRIMARY KEY,
  project     TEXT NOT NULL,
  intent      TEXT NOT NULL,
  utterances  TEXT NOT NULL,
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS stories_project ON stories (project, id);
`

// SQLiteStore keeps stories in a SQLite database.
//
// IDs are stored as integers (they never use the sign bit). Utterances are
// stored as a JSON array.
type SQLiteStore struct {
	path  string
	sqlDB *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{path: cleanPath, sqlDB: sqlDB}, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, project, intent string, utterances []string) (*story.Story, error) {
	if err := checkFields(project, intent); err != nil {
		return nil, err
	}
	// Millisecond precision, matching what is read back.
	now := fromMillis(toMillis(time.Now()))
	st := &story.Story{
		ID:         ksid.NewID(),
		Project:    project,
		Intent:     intent,
		Utterances: cloneUtterances(utterances),
		Created:    now,
		Modified:   now,
	}
	encoded, err := json.Marshal(st.Utterances)
	if err != nil {
		return nil, fmt.Errorf("encode utterances: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO stories (id, project, intent, utterances, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(st.ID), st.Project, st.Intent, string(encoded), toMillis(st.Created), toMillis(st.Modified),
	)
	if err != nil {
		return nil, fmt.Errorf("insert story: %w", err)
	}
	return st, nil
}

// Stories implements Store.
func (s *SQLiteStore) Stories(ctx context.Context, project string) ([]*story.Story, error) {
	if project == "" {
		return nil, ErrProjectRequired
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, project, intent, utterances, created_at, updated_at FROM stories WHERE project = ? ORDER BY id`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*story.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return out, nil
}

// Projects implements Store.
func (s *SQLiteStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT project FROM stories ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, project string, id ksid.ID, intent string, utterances []string) (*story.Story, error) {
	if err := checkFields(project, intent); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(cloneUtterances(utterances))
	if err != nil {
		return nil, fmt.Errorf("encode utterances: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE stories SET intent = ?, utterances = ?, updated_at = ? WHERE id = ? AND project = ?`,
		intent, string(encoded), toMillis(time.Now()), int64(id), project,
	)
	if err != nil {
		return nil, fmt.Errorf("update story: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update story: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, project, intent, utterances, created_at, updated_at FROM stories WHERE id = ?`,
		int64(id),
	)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, project string, id ksid.ID) error {
	if project == "" {
		return ErrProjectRequired
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM stories WHERE id = ? AND project = ?`, int64(id), project)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reload implements Store. Every query reads the database file so there is
// nothing cached.
func (s *SQLiteStore) Reload(ctx context.Context) error {
	return ctx.Err()
}

// Path implements Store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStory(row scanner) (*story.Story, error) {
	var (
		id               int64
		encoded          string
		created, updated int64
		st               story.Story
	)
	if err := row.Scan(&id, &st.Project, &st.Intent, &encoded, &created, &updated); err != nil {
		return nil, fmt.Errorf("scan story: %w", err)
	}
	st.ID = ksid.ID(id)
	if err := json.Unmarshal([]byte(encoded), &st.Utterances); err != nil {
		return nil, fmt.Errorf("decode utterances of %s: %w", st.ID, err)
	}
	if st.Utterances == nil {
		st.Utterances = []string{}
	}
	st.Created = fromMillis(created)
	st.Modified = fromMillis(updated)
	return &st, nil
}
