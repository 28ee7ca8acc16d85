// Package story defines story records and the story file codec.
//
// A story groups an intent name with example utterances. [Serialize] renders
// every story of a project into a single text artifact consumed by dialogue
// training pipelines and [Deserialize] parses such text back, rejecting
// malformed hand-edited files. See grammar.go for the text format.
package story

import (
	"errors"
	"slices"
	"time"

	"github.com/maruel/ksid"
)

var (
	errIDRequired      = errors.New("id is required")
	errProjectRequired = errors.New("project is required")
	errIntentRequired  = errors.New("intent is required")
)

// Story is one training example group owned by a project.
type Story struct {
	ID         ksid.ID   `json:"id" jsonschema:"description=Unique story identifier"`
	Project    string    `json:"project" jsonschema:"description=Name of the owning project"`
	Intent     string    `json:"intent" jsonschema:"description=User intent this story exemplifies"`
	Utterances []string  `json:"utterances" jsonschema:"description=Example phrases for the intent in order"`
	Created    time.Time `json:"created" jsonschema:"description=Creation timestamp"`
	Modified   time.Time `json:"modified" jsonschema:"description=Last modification timestamp"`
}

// Clone returns a deep copy.
func (s *Story) Clone() *Story {
	c := *s
	if s.Utterances != nil {
		c.Utterances = slices.Clone(s.Utterances)
	}
	return &c
}

// GetID returns the story's ID.
func (s *Story) GetID() ksid.ID {
	return s.ID
}

// Validate checks that the story can be persisted.
func (s *Story) Validate() error {
	if s.ID.IsZero() {
		return errIDRequired
	}
	if s.Project == "" {
		return errProjectRequired
	}
	if s.Intent == "" {
		return errIntentRequired
	}
	return nil
}
