package folders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(DefaultLayout(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestMoveRelocatesFile(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	if err := s.Save(ctx, domain.StatusInbox, "a.pdf", bytes.NewBufferString("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Move(ctx, "a.pdf", domain.StatusInbox, domain.StatusNeedsReview); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, domain.StatusInbox, "a.pdf"); ok {
		t.Fatalf("file still in inbox")
	}
	if ok, _ := s.Exists(ctx, domain.StatusNeedsReview, "a.pdf"); !ok {
		t.Fatalf("file missing from review folder")
	}
	raw, err := os.ReadFile(filepath.Join(s.Layout().Review, "a.pdf"))
	if err != nil || string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q err=%v", raw, err)
	}
}

func TestMoveMissingSource(t *testing.T) {
	s := newTestStorage(t)

	err := s.Move(context.Background(), "ghost.pdf", domain.StatusInbox, domain.StatusHold)
	if !errors.Is(err, domain.ErrFileNotFound) || !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected file not found storage error, got %v", err)
	}
}

func TestMoveRefusesOccupiedDestination(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_ = s.Save(ctx, domain.StatusInbox, "a.pdf", bytes.NewBufferString("new"))
	_ = s.Save(ctx, domain.StatusHold, "a.pdf", bytes.NewBufferString("old"))

	err := s.Move(ctx, "a.pdf", domain.StatusInbox, domain.StatusHold)
	if !errors.Is(err, domain.ErrMoveFailed) {
		t.Fatalf("expected move failed, got %v", err)
	}
	if ok, _ := s.Exists(ctx, domain.StatusInbox, "a.pdf"); !ok {
		t.Fatalf("source must stay in place")
	}
}

func TestMoveBetweenSharedFoldersIsNoop(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_ = s.Save(ctx, domain.StatusProcessing, "a.pdf", bytes.NewBufferString("x"))

	if err := s.Move(ctx, "a.pdf", domain.StatusProcessing, domain.StatusProcessed); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, domain.StatusProcessed, "a.pdf"); !ok {
		t.Fatalf("file vanished from the outbox")
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	s := newTestStorage(t)
	for _, name := range []string{"../a.pdf", "sub/a.pdf", "", ".."} {
		if _, err := s.Exists(context.Background(), domain.StatusInbox, name); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", name, err)
		}
	}
}

func TestListSkipsHiddenAndRecords(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_ = s.Save(ctx, domain.StatusProcessing, "b.pdf", bytes.NewBufferString("x"))
	_ = s.Save(ctx, domain.StatusProcessing, "a.pdf", bytes.NewBufferString("x"))
	_ = os.WriteFile(filepath.Join(s.Layout().Processing, ".tmp-123"), []byte("x"), 0o644)
	_ = os.Mkdir(filepath.Join(s.Layout().Processing, "nested"), 0o755)
	if err := s.WriteProcessingRecord(ctx, domain.ProcessingRecord{ID: "doc-1"}); err != nil {
		t.Fatalf("WriteProcessingRecord() error = %v", err)
	}

	names, err := s.List(ctx, domain.StatusProcessed)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fmt.Sprint(names) != "[a.pdf b.pdf]" {
		t.Fatalf("unexpected listing %v", names)
	}
}

func TestSaveRefusesOverwrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_ = s.Save(ctx, domain.StatusInbox, "a.pdf", bytes.NewBufferString("x"))

	if err := s.Save(ctx, domain.StatusInbox, "a.pdf", bytes.NewBufferString("y")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestProcessingRecordRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	conf := 0.92
	rec := domain.ProcessingRecord{
		ID:          "doc-1",
		Filename:    "invoice_17.pdf",
		Status:      domain.StatusProcessed,
		Metadata:    domain.Metadata{"category": "Rechnung"},
		Confidence:  &conf,
		User:        "system",
		ProcessedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := s.WriteProcessingRecord(ctx, rec); err != nil {
		t.Fatalf("WriteProcessingRecord() error = %v", err)
	}

	got, err := s.ReadProcessingRecord(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ReadProcessingRecord() error = %v", err)
	}
	if got.Filename != rec.Filename || got.Metadata["category"] != "Rechnung" || *got.Confidence != conf {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := s.RemoveProcessingRecord(ctx, "doc-1"); err != nil {
		t.Fatalf("RemoveProcessingRecord() error = %v", err)
	}
	if err := s.RemoveProcessingRecord(ctx, "doc-1"); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}
	if _, err := s.ReadProcessingRecord(ctx, "doc-1"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveAndOpen(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_ = s.Save(ctx, domain.StatusDeleted, "a.pdf", bytes.NewBufferString("body"))

	rc, err := s.Open(ctx, domain.StatusDeleted, "a.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "body" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := s.Remove(ctx, domain.StatusDeleted, "a.pdf"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(ctx, domain.StatusDeleted, "a.pdf"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	if err := os.WriteFile(src, bytes.Repeat([]byte("scan"), 4096), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := copyVerified(src, dst); err != nil {
		t.Fatalf("copyVerified() error = %v", err)
	}
	a, _ := fileDigest(src)
	b, _ := fileDigest(dst)
	if !bytes.Equal(a, b) {
		t.Fatalf("digests differ")
	}
}
