package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultSettle = 500 * time.Millisecond
	pollInterval  = 250 * time.Millisecond
)

// InboxWatcher triggers a discovery pass once the inbox has been quiet for the
// settle period after a PDF appeared, changed or vanished. Scanners write
// files in several chunks, so single events are never acted on directly.
type InboxWatcher struct {
	dir     string
	settle  time.Duration
	trigger func(context.Context) error
}

func New(dir string, settle time.Duration, trigger func(context.Context) error) *InboxWatcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &InboxWatcher{dir: dir, settle: settle, trigger: trigger}
}

// Run blocks until ctx is done.
func (w *InboxWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("inbox_watch_started", "dir", w.dir, "settle_ms", w.settle.Milliseconds())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastEvent time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if relevant(ev) {
				lastEvent = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox_watch_error", "dir", w.dir, "error", err)
		case now := <-ticker.C:
			if lastEvent.IsZero() || now.Sub(lastEvent) < w.settle {
				continue
			}
			lastEvent = time.Time{}
			if err := w.trigger(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("inbox_watch_trigger_failed", "error", err)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
