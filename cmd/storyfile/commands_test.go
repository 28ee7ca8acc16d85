package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/maruel/storyfile/internal/config"
	"github.com/maruel/storyfile/internal/export"
)

// newApp returns an app storing its data in a temporary directory.
func newApp(t *testing.T, backend string) (*app, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Backend = backend
	var out bytes.Buffer
	return &app{cfg: cfg, out: &out}, &out
}

func runOK(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := run(t.Context(), a, args); err != nil {
		t.Fatalf("run(%q) error: %v", args, err)
	}
	return out.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommands(t *testing.T) {
	for _, backend := range []string{"jsonl", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			a, out := newApp(t, backend)

			runOK(t, a, out, "add", "-project", "bot", "-intent", "greet", "hi", "hello")
			byeID := strings.TrimSpace(runOK(t, a, out, "add", "-project", "bot", "-intent", "bye"))
			runOK(t, a, out, "add", "-project", "shop", "-intent", "order", "buy #1")

			if got := runOK(t, a, out, "projects"); got != "bot\nshop\n" {
				t.Errorf("projects = %q", got)
			}
			list := runOK(t, a, out, "list", "-project", "bot")
			if !strings.Contains(list, "greet") || !strings.Contains(list, byeID) {
				t.Errorf("list = %q", list)
			}

			if got := runOK(t, a, out, "export", "-project", "bot"); got != "## bye\n\n## greet\n- hi\n- hello\n" {
				t.Errorf("export = %q", got)
			}

			runOK(t, a, out, "update", "-project", "bot", "-intent", "farewell", byeID, "ciao")
			file := filepath.Join(t.TempDir(), "bot.md")
			runOK(t, a, out, "export", "-project", "bot", "-o", file)
			data, err := os.ReadFile(file)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "## farewell\n- ciao\n\n## greet\n- hi\n- hello\n" {
				t.Errorf("exported file = %q", data)
			}

			runOK(t, a, out, "delete", "-project", "bot", byeID)
			if err := run(t.Context(), a, []string{"delete", "-project", "bot", byeID}); err == nil {
				t.Error("second delete expected error, got nil")
			}
			if err := run(t.Context(), a, []string{"export", "-project", "empty"}); !errors.Is(err, export.ErrNoStories) {
				t.Errorf("export(empty) error = %v, want ErrNoStories", err)
			}
		})
	}
}

func TestImportValidate(t *testing.T) {
	a, out := newApp(t, "jsonl")
	dir := t.TempDir()
	good := writeFile(t, dir, "good.md", "## greet\n- hi\n- hello\n\n## bye\n")
	bad := writeFile(t, dir, "bad.md", "## greet\nhi\n")

	runOK(t, a, out, "validate", good)

	out.Reset()
	err := run(t.Context(), a, []string{"validate", good, bad})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("validate error = %v", err)
	}
	if got := out.String(); !strings.HasPrefix(got, bad+":2:1: ") {
		t.Errorf("validate output = %q", got)
	}

	if err := run(t.Context(), a, []string{"import", "-project", "bot", good, bad}); err == nil {
		t.Error("import of a bad file expected error, got nil")
	}
	if got := runOK(t, a, out, "projects"); got != "" {
		t.Errorf("a failed import stored stories: %q", got)
	}

	runOK(t, a, out, "import", "-project", "bot", good)
	runOK(t, a, out, "import", "-project", "bot", "-replace", good)
	if got := runOK(t, a, out, "export", "-project", "bot"); got != "## bye\n\n## greet\n- hi\n- hello\n" {
		t.Errorf("export after import = %q", got)
	}
}

func TestExportAll(t *testing.T) {
	a, out := newApp(t, "jsonl")
	a.cfg.Git = true
	a.cfg.AuthorName = "Tester"
	runOK(t, a, out, "add", "-project", "bot", "-intent", "greet", "hi")
	runOK(t, a, out, "add", "-project", "shop", "-intent", "order", "buy")

	got := runOK(t, a, out, "export-all")
	if !strings.Contains(got, filepath.Join(a.cfg.ExportDir(), "bot.md")) || !strings.Contains(got, "shop.md") {
		t.Errorf("export-all = %q", got)
	}
	data, err := os.ReadFile(filepath.Join(a.cfg.ExportDir(), "shop.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "## order\n- buy\n" {
		t.Errorf("shop.md = %q", data)
	}
	runOK(t, a, out, "export-all")
	history := runOK(t, a, out, "history", "-project", "bot")
	if n := strings.Count(history, "\n"); n != 1 || !strings.Contains(history, "Tester Export bot") {
		t.Errorf("history = %q", history)
	}
}

func TestHistoryWithoutGit(t *testing.T) {
	a, out := newApp(t, "jsonl")
	if got := runOK(t, a, out, "history", "-project", "bot"); got != "no history for bot\n" {
		t.Errorf("history before export = %q", got)
	}
	runOK(t, a, out, "add", "-project", "bot", "-intent", "greet", "hi")
	runOK(t, a, out, "export-all")
	if got := runOK(t, a, out, "history", "-project", "bot"); got != "no history for bot\n" {
		t.Errorf("history = %q", got)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.ExportDir(), ".git")); !os.IsNotExist(err) {
		t.Errorf("history created a repository: %v", err)
	}

	a.cfg.Git = true
	runOK(t, a, out, "export-all")
	if got := runOK(t, a, out, "history", "-project", "shop"); got != "no history for shop\n" {
		t.Errorf("history of unexported project = %q", got)
	}
}

func TestRunErrors(t *testing.T) {
	a, _ := newApp(t, "jsonl")
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing project", []string{"list"}},
		{"bad flag", []string{"list", "-nope"}},
		{"bad id", []string{"delete", "-project", "bot", "not an id"}},
		{"delete without id", []string{"delete", "-project", "bot"}},
		{"update without id", []string{"update", "-project", "bot", "-intent", "x"}},
		{"add without intent", []string{"add", "-project", "bot"}},
		{"validate nothing", []string{"validate"}},
		{"import nothing", []string{"import", "-project", "bot"}},
		{"missing file", []string{"validate", filepath.Join(t.TempDir(), "nope.md")}},
		{"history of bad project", []string{"history", "-project", "../x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(t.Context(), a, tt.args); err == nil {
				t.Errorf("run(%q) expected error, got nil", tt.args)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		val  any
		want bool
	}{
		{"", true},
		{"x", false},
		{false, true},
		{int64(0), true},
		{int64(3), false},
		{nil, true},
		{struct{}{}, false},
	}
	for _, tt := range tests {
		if got := isEmpty(tt.val); got != tt.want {
			t.Errorf("isEmpty(%#v) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestReadBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info *debug.BuildInfo
		want buildInfo
	}{
		{"nil", nil, buildInfo{version: "unknown", goVersion: "unknown", revision: "unknown"}},
		{
			"devel",
			&debug.BuildInfo{GoVersion: "go1.25.5", Main: debug.Module{Version: "(devel)"}},
			buildInfo{version: "dev", goVersion: "go1.25.5", revision: "unknown"},
		},
		{
			"vcs",
			&debug.BuildInfo{
				GoVersion: "go1.25.5",
				Main:      debug.Module{Version: "v1.2.3"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			buildInfo{version: "v1.2.3", goVersion: "go1.25.5", revision: "abc123", dirty: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readBuildInfo(tt.info); got != tt.want {
				t.Errorf("readBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
	var buf bytes.Buffer
	printVersion(&buf)
	if !strings.HasPrefix(buf.String(), "storyfile ") || !strings.Contains(buf.String(), "Go version: ") {
		t.Errorf("printVersion() = %q", buf.String())
	}
}
