package story

import (
	"errors"
	"fmt"

	"github.com/maruel/ksid"
)

var (
	// ErrInvalidInput is matched by every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid story input")
	// ErrMalformedFormat is matched by every *MalformedFormatError.
	ErrMalformedFormat = errors.New("malformed story file")
)

// InvalidInputError reports stories violating a serializer precondition.
//
// It is never retried: the caller supplied bad data and no output is produced.
type InvalidInputError struct {
	// StoryID is the offending story, zero when unknown.
	StoryID ksid.ID
	Reason  string
}

func (e *InvalidInputError) Error() string {
	if e.StoryID.IsZero() {
		return "invalid story input: " + e.Reason
	}
	return fmt.Sprintf("invalid story input: story %s: %s", e.StoryID, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MalformedFormatError reports text that does not follow the story file
// grammar. Line and Column are 1-based; Column counts bytes.
type MalformedFormatError struct {
	Line   int
	Column int
	Reason string
}

func (e *MalformedFormatError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedFormat) hold.
func (e *MalformedFormatError) Is(target error) bool {
	return target == ErrMalformedFormat
}

func malformed(line, col int, format string, args ...any) *MalformedFormatError {
	return &MalformedFormatError{Line: line, Column: col, Reason: fmt.Sprintf(format, args...)}
}
