// Package export renders stored stories as story files and delivers them.
//
// An [Exporter] reads the stories of a project from a [Source], serializes
// them with [story.Serialize] and hands the result to a [Sink]: a writer, a
// directory, or a directory tracked in git.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/maruel/storyfile/internal/story"
	"golang.org/x/sync/errgroup"
)

// ErrNoStories is returned when a project has no story to export.
var ErrNoStories = errors.New("no stories found")

// Source provides the stories to export.
type Source interface {
	// Stories returns all stories of a project.
	Stories(ctx context.Context, project string) ([]*story.Story, error)
	// Projects returns the names of all projects having stories.
	Projects(ctx context.Context) ([]string, error)
}

// Reloader is implemented by sources caching data that other processes can
// change.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Sink receives the story file of a project.
type Sink interface {
	Deliver(ctx context.Context, project string, body []byte) error
}

// Result describes one exported project.
type Result struct {
	Project string `json:"project"`
	Stories int    `json:"stories"`
	Intents int    `json:"intents"`
	Bytes   int    `json:"bytes"`
}

// Exporter exports projects from Source to Sink.
type Exporter struct {
	Source Source
	Sink   Sink
}

// Render returns the story file of a project without delivering it.
func (e *Exporter) Render(ctx context.Context, project string) (string, Result, error) {
	stories, err := e.Source.Stories(ctx, project)
	if err != nil {
		return "", Result{}, fmt.Errorf("failed to load stories of %q: %w", project, err)
	}
	if len(stories) == 0 {
		return "", Result{}, fmt.Errorf("%w in project %q", ErrNoStories, project)
	}
	body, err := story.Serialize(stories, project)
	if err != nil {
		return "", Result{}, err
	}
	return body, Result{Project: project, Stories: len(stories), Intents: countHeaders(body), Bytes: len(body)}, nil
}

// countHeaders counts the intent blocks of a serialized story file. Content
// never starts a line with a header marker since '#' is always escaped.
func countHeaders(body string) int {
	return strings.Count("\n"+body, "\n"+story.HeaderMarker)
}

// Export renders the story file of a project and delivers it to Sink.
//
// A project without stories returns ErrNoStories and nothing is delivered.
func (e *Exporter) Export(ctx context.Context, project string) (Result, error) {
	body, res, err := e.Render(ctx, project)
	if err != nil {
		return Result{}, err
	}
	if err := e.Sink.Deliver(ctx, project, []byte(body)); err != nil {
		return Result{}, fmt.Errorf("failed to deliver %q: %w", project, err)
	}
	slog.DebugContext(ctx, "Exported project", "project", project, "stories", res.Stories, "intents", res.Intents)
	return res, nil
}

// ExportAll exports every project of Source, at most concurrency at a time.
//
// Results are sorted by project. Projects emptied while the export runs are
// skipped. The first failure cancels the remaining exports.
func (e *Exporter) ExportAll(ctx context.Context, concurrency int) ([]Result, error) {
	projects, err := e.Source.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	results := make([]Result, len(projects))
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, project := range projects {
		g.Go(func() error {
			res, err := e.Export(ctx, project)
			if errors.Is(err, ErrNoStories) {
				return nil
			}
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if r.Project != "" {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Result) int { return strings.Compare(a.Project, b.Project) })
	return out, nil
}
