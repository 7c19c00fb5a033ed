package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state", "documents.json"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	docs, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty registry, got %d", len(docs))
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")
	store, _ := New(path)
	conf := 0.45
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	docs := []domain.Document{
		{ID: "b", Filename: "b.pdf", Status: domain.StatusNeedsReview, Origin: domain.OriginScanner, Confidence: &conf, Metadata: domain.Metadata{"category": "Rechnung"}, Mode: domain.ModeAuto, CreatedAt: at, UpdatedAt: at},
		{ID: "a", Filename: "a.pdf", Status: domain.StatusInbox, Origin: domain.OriginManual, Metadata: domain.Metadata{}, Mode: domain.ModeAuto, User: "alice", CreatedAt: at, UpdatedAt: at},
	}

	if err := store.Save(context.Background(), docs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"b": {`) {
		t.Fatalf("expected id-keyed object, got %s", raw)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}
	if loaded[1].Confidence == nil || *loaded[1].Confidence != conf || loaded[0].Confidence != nil {
		t.Fatalf("confidence not preserved: %+v", loaded)
	}
	if !loaded[0].CreatedAt.Equal(at) {
		t.Fatalf("timestamps not preserved: %v", loaded[0].CreatedAt)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")
	_ = os.WriteFile(path, []byte("{not json"), 0o644)
	store, _ := New(path)

	if _, err := store.Load(context.Background()); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
