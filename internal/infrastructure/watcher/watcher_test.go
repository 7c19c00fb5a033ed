package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	cases := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "/in/a.pdf", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/in/A.PDF", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/in/a.pdf", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/in/.tmp-123", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "/in/notes.txt", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		if got := relevant(tc.ev); got != tc.want {
			t.Fatalf("relevant(%v) = %v, want %v", tc.ev, got, tc.want)
		}
	}
}

func TestRunTriggersOnceAfterBurst(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, 100*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one debounced trigger, got %d", calls.Load())
	}
}
