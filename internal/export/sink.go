// Sinks receiving exported story files.

package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maruel/storyfile/internal/storage/git"
)

// Extension is appended to the project name to form the exported file name.
const Extension = ".md"

// ErrInvalidProject is returned when a project name cannot be used as a file
// name.
var ErrInvalidProject = errors.New("invalid project name")

// WriterSink writes each story file to W.
type WriterSink struct {
	W  io.Writer
	mu sync.Mutex
}

// Deliver implements Sink.
func (s *WriterSink) Deliver(_ context.Context, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.W.Write(body)
	return err
}

// DirSink writes each story file to <Dir>/<project>.md.
type DirSink struct {
	Dir string
}

// FileName returns the name of the file holding project, relative to Dir.
func FileName(project string) (string, error) {
	if project == "" || project == "." || project == ".." ||
		strings.ContainsAny(project, `/\`) || filepath.Base(project) != project {
		return "", fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}
	return project + Extension, nil
}

// Deliver implements Sink. The file is replaced atomically.
func (s *DirSink) Deliver(ctx context.Context, project string, body []byte) error {
	_, err := s.write(ctx, project, body)
	return err
}

func (s *DirSink) write(ctx context.Context, project string, body []byte) (string, error) {
	name, err := FileName(project)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for output directories
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.Dir, name), body); err != nil {
		return "", err
	}
	return name, nil
}

// GitSink writes story files like DirSink and commits each changed file.
//
// Deliveries are serialized so the worktree is never scanned mid-write.
type GitSink struct {
	dir    DirSink
	repo   *git.Repo
	author git.Author
	mu     sync.Mutex
}

// NewGitSink opens or initializes a git repository in dir.
func NewGitSink(ctx context.Context, dir string, author git.Author) (*GitSink, error) {
	repo, err := git.Open(ctx, dir, author.Name, author.Email)
	if err != nil {
		return nil, err
	}
	return &GitSink{dir: DirSink{Dir: dir}, repo: repo, author: author}, nil
}

// Repo returns the repository receiving the commits.
func (s *GitSink) Repo() *git.Repo {
	return s.repo
}

// Deliver implements Sink. No commit is made when the file is unchanged.
func (s *GitSink) Deliver(ctx context.Context, project string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, err := s.dir.write(ctx, project, body)
	if err != nil {
		return err
	}
	if _, err := s.repo.Commit(ctx, s.author, "Export "+project, name); err != nil {
		return fmt.Errorf("failed to record %s: %w", name, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644) //nolint:gosec // G302: exported files are meant to be shared
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
