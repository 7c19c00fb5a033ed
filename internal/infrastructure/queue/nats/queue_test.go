package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func TestSubjects(t *testing.T) {
	cases := map[string]string{
		"":         "documents.ingested",
		"scan.":    "scan.ingested",
		" triage ": "triage.ingested",
		"a.b":      "a.b.ingested",
	}
	for prefix, want := range cases {
		if got := (Subjects{Prefix: prefix}).Ingested(); got != want {
			t.Fatalf("Ingested(%q) = %s, want %s", prefix, got, want)
		}
	}
	if got := (Subjects{}).Event(domain.EventPurged); got != "documents.events.purged" {
		t.Fatalf("unexpected event subject %s", got)
	}
}

func TestEncodeEvent(t *testing.T) {
	conf := 0.92
	payload, err := EncodeEvent(domain.LifecycleEvent{
		DocumentID: "doc-1",
		Filename:   "invoice_17.pdf",
		Type:       domain.EventTransitioned,
		From:       domain.StatusInbox,
		To:         domain.StatusProcessed,
		Actor:      "system",
		Confidence: &conf,
		At:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["document_id"] != "doc-1" || decoded["to"] != "processed" || decoded["confidence"] != 0.92 {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
		record    bool
	}{
		{context.Canceled, false, false},
		{fmt.Errorf("publish: %w", nats.ErrConnectionClosed), true, true},
		{nats.ErrNoServers, true, true},
		{gobreaker.ErrOpenState, true, true},
		{errors.New("unexpected reply"), false, true},
		{fmt.Errorf("publish: %w", nats.ErrMaxPayload), false, false},
		{nats.ErrBadSubject, false, false},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
		}
	}
}

func TestPublishErrorMarksOutagesOnly(t *testing.T) {
	err := publishError("documents.ingested", nats.ErrDisconnected)
	if !domain.IsKind(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "documents.ingested") {
		t.Fatalf("expected subject in error, got %v", err)
	}
	for _, permanent := range []error{nats.ErrMaxPayload, errors.New("unexpected reply")} {
		if err := publishError("documents.ingested", permanent); domain.IsKind(err, domain.ErrDependencyUnavailable) {
			t.Fatalf("%v must not be marked unavailable", permanent)
		}
	}
	if err := publishError("documents.ingested", nil); err != nil {
		t.Fatalf("publishError(nil) = %v", err)
	}
}
