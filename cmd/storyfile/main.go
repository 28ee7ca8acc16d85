// Package main is the entry point for the storyfile tool.
//
// storyfile keeps conversational training stories (an intent and the
// utterances expressing it) per project, and exports each project as a
// markdown story file. Configuration is read from CLI flags, STORYFILE_*
// environment variables and <data-dir>/storyfile.yaml.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/storyfile/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "storyfile: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	version := flag.Bool("version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion(os.Stdout)
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	if err := cfg.Load(flag.CommandLine); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := cfg.Level()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(level)
	slog.SetDefault(newLogger(os.Stderr, ll, isatty.IsTerminal(os.Stderr.Fd())))

	return run(ctx, &app{cfg: cfg, out: os.Stdout}, flag.Args())
}

// newLogger returns a tint logger writing to w.
func newLogger(w *os.File, level slog.Leveler, color bool) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !color,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if isEmpty(a.Value.Any()) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// isEmpty reports attribute values not worth logging.
func isEmpty(val any) bool {
	switch t := val.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: storyfile [flags] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func printVersion(w io.Writer) {
	info, _ := debug.ReadBuildInfo()
	b := readBuildInfo(info)
	fmt.Fprintf(w, "storyfile %s\n", b.version)
	fmt.Fprintf(w, "  Go version: %s\n", b.goVersion)
	fmt.Fprintf(w, "  Revision:   %s\n", b.revision)
	if b.dirty {
		fmt.Fprintf(w, "  Modified:   true\n")
	}
}

type buildInfo struct {
	version   string
	goVersion string
	revision  string
	dirty     bool
}

// readBuildInfo extracts the fields printed by -version. info may be nil.
func readBuildInfo(info *debug.BuildInfo) buildInfo {
	b := buildInfo{version: "unknown", goVersion: "unknown", revision: "unknown"}
	if info == nil {
		return b
	}
	switch v := info.Main.Version; v {
	case "", "(devel)":
		b.version = "dev"
	default:
		b.version = v
	}
	if info.GoVersion != "" {
		b.goVersion = info.GoVersion
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.revision = setting.Value
		case "vcs.modified":
			b.dirty = setting.Value == "true"
		}
	}
	return b
}
