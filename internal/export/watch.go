// Re-exports projects when the story store changes.

package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Watcher runs ExportAll whenever the file at Path changes.
//
// Files in the same directory whose name starts with Path's name count as
// well, which covers SQLite journals.
type Watcher struct {
	Exporter    *Exporter
	Path        string
	Interval    time.Duration // Minimum delay between two exports.
	Concurrency int

	// OnExport, if set, is called after each export pass.
	OnExport func([]Result, error)
}

// Run exports all projects once, then again after each change, until ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	_ = limiter.Reserve() // The initial pass uses the first token.
	w.export(ctx)

	var pending <-chan time.Time
	base := filepath.Base(w.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.DebugContext(ctx, "Store changed", "file", event.Name, "op", event.Op.String())
			if pending == nil {
				pending = time.After(limiter.Reserve().Delay())
			}
		case <-pending:
			pending = nil
			w.export(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching store", "err", err)
		}
	}
}

func (w *Watcher) export(ctx context.Context) {
	var results []Result
	err := w.reload(ctx)
	if err == nil {
		results, err = w.Exporter.ExportAll(ctx, w.Concurrency)
	}
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "Export failed", "err", err)
		}
	} else {
		slog.InfoContext(ctx, "Exported projects", "projects", len(results))
	}
	if w.OnExport != nil {
		w.OnExport(results, err)
	}
}

// reload refreshes the source so writes made by other processes are seen.
func (w *Watcher) reload(ctx context.Context) error {
	r, ok := w.Exporter.Source.(Reloader)
	if !ok {
		return nil
	}
	if err := r.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload source: %w", err)
	}
	return nil
}
