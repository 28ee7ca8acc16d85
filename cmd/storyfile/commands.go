// Subcommands of the storyfile tool.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/maruel/ksid"
	"github.com/maruel/storyfile/internal/config"
	"github.com/maruel/storyfile/internal/export"
	"github.com/maruel/storyfile/internal/storage"
	"github.com/maruel/storyfile/internal/storage/git"
	"github.com/maruel/storyfile/internal/story"
)

// app carries what every command needs.
type app struct {
	cfg *config.Config
	out io.Writer
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"add", "-project P -intent I [UTTERANCE...]: store a story", cmdAdd},
	{"update", "-project P -intent I ID [UTTERANCE...]: replace a story", cmdUpdate},
	{"delete", "-project P ID: remove a story", cmdDelete},
	{"list", "-project P: list the stories of a project", cmdList},
	{"projects", "list projects having stories", cmdProjects},
	{"export", "-project P [-o FILE]: print or write the story file of a project", cmdExport},
	{"export-all", "write the story file of every project to the output directory", cmdExportAll},
	{"history", "-project P [-n N]: show the export commits of a project", cmdHistory},
	{"import", "-project P [-replace] FILE...: store the stories of story files", cmdImport},
	{"validate", "FILE...: check story files", cmdValidate},
	{"watch", "export every project each time the store changes", cmdWatch},
}

func run(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, a, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	s, err := storage.Open(ctx, a.cfg.Backend, a.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	slog.DebugContext(ctx, "Opened store", "backend", a.cfg.Backend, "path", s.Path())
	return s, nil
}

// sink returns the sink of the output directory, tracked in git when enabled.
func (a *app) sink(ctx context.Context) (export.Sink, error) {
	dir := a.cfg.ExportDir()
	if !a.cfg.Git {
		return &export.DirSink{Dir: dir}, nil
	}
	return export.NewGitSink(ctx, dir, git.Author{Name: a.cfg.AuthorName, Email: a.cfg.AuthorEmail})
}

// newFlags returns a flag set for a command, with -project registered when
// project is not nil.
func newFlags(name string, project *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if project != nil {
		fs.StringVar(project, "project", "", "Project name (required)")
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string, project *string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if project != nil && *project == "" {
		return fmt.Errorf("%s: -project is required", fs.Name())
	}
	return nil
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	var project, intent string
	fs := newFlags("add", &project)
	fs.StringVar(&intent, "intent", "", "Intent name (required)")
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	st, err := s.Create(ctx, project, intent, fs.Args())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, st.ID)
	return err
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	var project, intent string
	fs := newFlags("update", &project)
	fs.StringVar(&intent, "intent", "", "Intent name (required)")
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("update: missing story ID")
	}
	id, err := ksid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("update: invalid story ID: %w", err)
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	_, err = s.Update(ctx, project, id, intent, fs.Args()[1:])
	return err
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	var project string
	fs := newFlags("delete", &project)
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("delete: expected exactly one story ID")
	}
	id, err := ksid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("delete: invalid story ID: %w", err)
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.Delete(ctx, project, id)
}

func cmdList(ctx context.Context, a *app, args []string) error {
	var project string
	fs := newFlags("list", &project)
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	stories, err := s.Stories(ctx, project)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINTENT\tUTTERANCES")
	for _, st := range stories {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", st.ID, st.Intent, len(st.Utterances))
	}
	return w.Flush()
}

func cmdProjects(ctx context.Context, a *app, args []string) error {
	fs := newFlags("projects", nil)
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	projects, err := s.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if _, err := fmt.Fprintln(a.out, p); err != nil {
			return err
		}
	}
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	var project, output string
	fs := newFlags("export", &project)
	fs.StringVar(&output, "o", "", "Output file (default stdout)")
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if output == "" {
		e := &export.Exporter{Source: s, Sink: &export.WriterSink{W: a.out}}
		_, err := e.Export(ctx, project)
		return err
	}
	e := &export.Exporter{Source: s}
	body, res, err := e.Render(ctx, project)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, []byte(body), 0o644); err != nil { //nolint:gosec // G306: exported files are meant to be shared
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	slog.InfoContext(ctx, "Exported project", "project", project, "file", output, "stories", res.Stories)
	return nil
}

func cmdExportAll(ctx context.Context, a *app, args []string) error {
	fs := newFlags("export-all", nil)
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	sink, err := a.sink(ctx)
	if err != nil {
		return err
	}
	e := &export.Exporter{Source: s, Sink: sink}
	results, err := e.ExportAll(ctx, a.cfg.Concurrency)
	if err != nil {
		return err
	}
	dir := a.cfg.ExportDir()
	for _, r := range results {
		name, _ := export.FileName(r.Project)
		if _, err := fmt.Fprintf(a.out, "%s: %d stories, %d intents\n", filepath.Join(dir, name), r.Stories, r.Intents); err != nil {
			return err
		}
	}
	return nil
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	var project string
	var n int
	fs := newFlags("history", &project)
	fs.IntVar(&n, "n", 20, "Maximum number of commits (0 for all)")
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	name, err := export.FileName(project)
	if err != nil {
		return err
	}
	repo, err := git.OpenExisting(ctx, a.cfg.ExportDir())
	if errors.Is(err, git.ErrNoRepository) {
		_, err = fmt.Fprintf(a.out, "no history for %s\n", project)
		return err
	}
	if err != nil {
		return err
	}
	commits, err := repo.History(ctx, name, n)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		_, err = fmt.Fprintf(a.out, "no history for %s\n", project)
		return err
	}
	for _, c := range commits {
		if _, err := fmt.Fprintf(a.out, "%.12s %s %s %s\n", c.Hash, c.AuthorDate.Format("2006-01-02 15:04"), c.Author, c.Message); err != nil {
			return err
		}
	}
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	var project string
	var replace bool
	fs := newFlags("import", &project)
	fs.BoolVar(&replace, "replace", false, "Delete the existing stories of the project first")
	if err := parse(fs, args, &project); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import: missing story file")
	}
	// Parse everything before touching the store.
	var blocks []*story.Story
	for _, path := range fs.Args() {
		b, err := readStoryFile(path)
		if err != nil {
			return err
		}
		blocks = append(blocks, b...)
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if replace {
		existing, err := s.Stories(ctx, project)
		if err != nil {
			return err
		}
		for _, st := range existing {
			if err := s.Delete(ctx, project, st.ID); err != nil {
				return err
			}
		}
		slog.InfoContext(ctx, "Deleted stories", "project", project, "count", len(existing))
	}
	for _, b := range blocks {
		if _, err := s.Create(ctx, project, b.Intent, b.Utterances); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(a.out, "imported %d stories into %s\n", len(blocks), project)
	return err
}

func cmdValidate(_ context.Context, a *app, args []string) error {
	fs := newFlags("validate", nil)
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("validate: missing story file")
	}
	invalid := 0
	for _, path := range fs.Args() {
		if _, err := readStoryFile(path); err != nil {
			invalid++
			if _, err := fmt.Fprintln(a.out, err); err != nil {
				return err
			}
		}
	}
	if invalid != 0 {
		return fmt.Errorf("%d of %d files are invalid", invalid, fs.NArg())
	}
	return nil
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlags("watch", nil)
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	sink, err := a.sink(ctx)
	if err != nil {
		return err
	}
	w := &export.Watcher{
		Exporter:    &export.Exporter{Source: s, Sink: sink},
		Path:        s.Path(),
		Interval:    a.cfg.Throttle,
		Concurrency: a.cfg.Concurrency,
	}
	slog.InfoContext(ctx, "Watching store", "path", s.Path(), "output", a.cfg.ExportDir())
	return w.Run(ctx)
}

// readStoryFile parses a story file. Errors are prefixed with path so a
// malformed file reads as path:line:col: reason.
func readStoryFile(path string) ([]*story.Story, error) {
	f, err := os.Open(path) //nolint:gosec // User-specified story file
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	blocks, err := story.Read(f)
	if errors.Is(err, story.ErrMalformedFormat) {
		return nil, fmt.Errorf("%s:%w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return blocks, nil
}
