// Package git records exported story files in a git repository using go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoRepository is returned by [OpenExisting] when dir is not a git
// repository.
var ErrNoRepository = errors.New("no git repository")

// Default identity used when none is configured.
const (
	DefaultName  = "storyfile"
	DefaultEmail = "storyfile@localhost"
)

// Author identifies who made a change for git commits.
type Author struct {
	Name  string
	Email string
}

// Commit represents a commit in git history.
type Commit struct {
	Hash       string    `json:"hash"`
	Message    string    `json:"message"` // Subject line.
	Body       string    `json:"body"`    // Commit body (may be empty).
	Author     string    `json:"author"`
	AuthorDate time.Time `json:"author_date"`
}

// Repo is a git repository rooted at a directory. Safe for concurrent use.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository at dir, initializing it when needed.
func Open(_ context.Context, dir, defaultName, defaultEmail string) (*Repo, error) {
	if defaultName == "" {
		defaultName = DefaultName
	}
	if defaultEmail == "" {
		defaultEmail = DefaultEmail
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for output directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &Repo{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// OpenExisting opens the repository at dir without creating anything.
func OpenExisting(_ context.Context, dir string) (*Repo, error) {
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w in %s", ErrNoRepository, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &Repo{dir: dir, defaultName: DefaultName, defaultEmail: DefaultEmail, repo: repo}, nil
}

// Dir returns the working directory of the repository.
func (r *Repo) Dir() string {
	return r.dir
}

// Commit stages files, given relative to Dir, and commits them.
//
// It returns false without creating a commit when none of the files changed
// since the previous commit.
func (r *Repo) Commit(ctx context.Context, author Author, msg string, files ...string) (bool, error) {
	if len(files) == 0 {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(f); err != nil {
			return false, fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	// Only the given files matter; other files may be mid-write.
	staged := false
	for _, f := range files {
		if fs, ok := status[filepath.ToSlash(f)]; ok && fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			staged = true
		}
	}
	if !staged {
		return false, nil
	}

	name := author.Name
	email := author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: now},
		Committer: &object.Signature{
			Name:  r.defaultName,
			Email: r.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Count returns the number of commits reachable from HEAD.
func (r *Repo) Count(ctx context.Context) (int, error) {
	commits, err := r.History(ctx, "", 0)
	return len(commits), err
}

// History returns up to n commits touching path, most recent first. An empty
// path means the whole repository; n <= 0 means no limit.
func (r *Repo) History(ctx context.Context, path string, n int) ([]*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		// No commit yet.
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for n <= 0 || len(commits) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:       c.Hash.String(),
			Message:    subject,
			Body:       strings.TrimSpace(body),
			Author:     c.Author.Name,
			AuthorDate: c.Author.When,
		})
	}
	return commits, nil
}
