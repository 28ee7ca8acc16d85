// Implements Store on top of a JSONL table.

package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/storyfile/internal/jsonldb"
	"github.com/maruel/storyfile/internal/story"
)

// JSONLStore keeps stories in a single JSONL file.
type JSONLStore struct {
	table     *jsonldb.Table[*story.Story]
	byProject *jsonldb.Index[string, *story.Story]
}

// NewJSONLStore opens or creates the story table at path.
func NewJSONLStore(path string) (*JSONLStore, error) {
	table, err := jsonldb.NewTable[*story.Story](path)
	if err != nil {
		return nil, err
	}
	return &JSONLStore{
		table:     table,
		byProject: jsonldb.NewIndex(table, func(s *story.Story) string { return s.Project }),
	}, nil
}

// Create implements Store.
func (s *JSONLStore) Create(ctx context.Context, project, intent string, utterances []string) (*story.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFields(project, intent); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	st := &story.Story{
		ID:         ksid.NewID(),
		Project:    project,
		Intent:     intent,
		Utterances: cloneUtterances(utterances),
		Created:    now,
		Modified:   now,
	}
	if err := s.table.Append(st); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	return st.Clone(), nil
}

// Stories implements Store.
func (s *JSONLStore) Stories(ctx context.Context, project string) ([]*story.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if project == "" {
		return nil, ErrProjectRequired
	}
	return slices.Collect(s.byProject.Iter(project)), nil
}

// Projects implements Store.
func (s *JSONLStore) Projects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := s.byProject.Keys()
	slices.Sort(keys)
	return keys, nil
}

// Update implements Store.
func (s *JSONLStore) Update(ctx context.Context, project string, id ksid.ID, intent string, utterances []string) (*story.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFields(project, intent); err != nil {
		return nil, err
	}
	st := s.table.Get(id)
	if st == nil || st.Project != project {
		return nil, ErrNotFound
	}
	st.Intent = intent
	st.Utterances = cloneUtterances(utterances)
	st.Modified = time.Now().UTC()
	prev, err := s.table.Update(st)
	if err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}
	if prev == nil {
		// Deleted concurrently.
		return nil, ErrNotFound
	}
	return st, nil
}

// Delete implements Store.
func (s *JSONLStore) Delete(ctx context.Context, project string, id ksid.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if project == "" {
		return ErrProjectRequired
	}
	if st := s.table.Get(id); st == nil || st.Project != project {
		return ErrNotFound
	}
	deleted, err := s.table.Delete(id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Reload implements Store.
func (s *JSONLStore) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.table.Reload(); err != nil {
		return fmt.Errorf("failed to reload stories: %w", err)
	}
	return nil
}

// Path implements Store.
func (s *JSONLStore) Path() string {
	return s.table.Path()
}

// Close implements Store. The table keeps no open file handle.
func (s *JSONLStore) Close() error {
	return nil
}
