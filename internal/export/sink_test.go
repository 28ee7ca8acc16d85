package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/storyfile/internal/storage/git"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		project string
		want    string
		ok      bool
	}{
		{"bot", "bot.md", true},
		{"my bot", "my bot.md", true},
		{".hidden", ".hidden.md", true},
		{"", "", false},
		{".", "", false},
		{"..", "", false},
		{"../x", "", false},
		{"a/b", "", false},
		{`a\b`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.project, func(t *testing.T) {
			got, err := FileName(tt.project)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Errorf("FileName(%q) = %q, %v; want %q", tt.project, got, err, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidProject) {
				t.Errorf("FileName(%q) error = %v, want ErrInvalidProject", tt.project, err)
			}
		})
	}
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := &Exporter{Source: newSource(), Sink: &DirSink{Dir: dir}}

	if _, err := e.Export(t.Context(), "bot"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "bot.md")
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "## bye\n\n## greet\n- hi\n- hello\n- hey\n" {
		t.Errorf("content = %q", first)
	}

	if _, err := e.Export(t.Context(), "bot"); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(second) != string(first) {
		t.Errorf("second export differs: %q != %q", second, first)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want 1 (temporary file left behind?)", len(entries))
	}

	s := &DirSink{Dir: dir}
	if err := s.Deliver(t.Context(), "../x", []byte("## x\n")); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("Deliver(../x) error = %v, want ErrInvalidProject", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "x.md")); !os.IsNotExist(err) {
		t.Errorf("file written outside of the output directory: %v", err)
	}
}

func TestGitSink(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	sink, err := NewGitSink(ctx, dir, git.Author{Name: "Exporter", Email: "exporter@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	src := newSource()
	e := &Exporter{Source: src, Sink: sink}
	count := func() int {
		t.Helper()
		n, err := sink.Repo().Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	if _, err := e.ExportAll(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 2 {
		t.Errorf("after first export: %d commits, want 2", n)
	}

	// Unchanged stories: no new commit.
	if _, err := e.ExportAll(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 2 {
		t.Errorf("after unchanged export: %d commits, want 2", n)
	}

	src.stories["bot"][0].Utterances = append(src.stories["bot"][0].Utterances, "good day")
	if _, err := e.ExportAll(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 3 {
		t.Errorf("after changed export: %d commits, want 3", n)
	}
	history, err := sink.Repo().History(ctx, "bot.md", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Message != "Export bot" || history[0].Author != "Exporter" {
		t.Errorf("bot.md history = %+v", history)
	}

	if err := sink.Deliver(ctx, "a/b", []byte("## x\n")); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("Deliver(a/b) error = %v, want ErrInvalidProject", err)
	}
}
