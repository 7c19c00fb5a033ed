package usecase

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func TestQueryNextDefaultsToActiveStatuses(t *testing.T) {
	h := newHarness()
	uc := NewQueryUseCase(h.registry, h.folders)
	ctx := context.Background()

	done := h.seed("done.pdf")
	if _, err := h.actions.Process(ctx, done.ID, "alice"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	h.clock.Advance(time.Second)
	held := h.seed("held.pdf")
	if _, err := h.actions.Hold(ctx, held.ID, "alice"); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}

	next, err := uc.Next(ctx, nil)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next.ID != held.ID {
		t.Fatalf("expected %s, got %s", held.ID, next.ID)
	}

	next, err = uc.Next(ctx, []domain.DocumentStatus{domain.StatusProcessed})
	if err != nil || next.ID != done.ID {
		t.Fatalf("expected processed doc, got %+v err=%v", next, err)
	}
}

func TestQueryOpenFileFollowsStatus(t *testing.T) {
	h := newHarness()
	uc := NewQueryUseCase(h.registry, h.folders)
	doc := h.seed("a.pdf")
	if _, err := h.actions.Hold(context.Background(), doc.ID, "alice"); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}

	got, rc, err := uc.OpenFile(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if got.Status != domain.StatusHold || string(body) != "%PDF-1.4" {
		t.Fatalf("unexpected file: status=%s body=%q", got.Status, body)
	}

	h.folders.drop(domain.StatusHold, "a.pdf")
	if _, _, err := uc.OpenFile(context.Background(), doc.ID); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
