package httpclassifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/infrastructure/resilience"
)

func TestClassifySendsTokenAndIdentity(t *testing.T) {
	var gotPath, gotQuery, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("X-Correlation-Id")
		_, _ = w.Write([]byte(`{"kind":"INVOICE","doc_id":"RE-17","confidence":0.92}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", time.Second)
	resp, err := client.Classify(context.Background(), domain.ClassificationRequest{
		Token:      "tok-1",
		DocumentID: "doc-1",
		Filename:   "invoice_17.pdf",
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if gotPath != "/api/v1/classify/tok-1" || gotHeader != "tok-1" {
		t.Fatalf("unexpected request path=%s header=%s", gotPath, gotHeader)
	}
	if !strings.Contains(gotQuery, "document_id=doc-1") || !strings.Contains(gotQuery, "filename=invoice_17.pdf") {
		t.Fatalf("unexpected query %s", gotQuery)
	}
	if resp.Shape != domain.ShapeClean || *resp.Category.Value != "INVOICE" || *resp.Confidence != 0.92 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClassifyNon2xxIsDependencyUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).Classify(context.Background(), domain.ClassificationRequest{Token: "t"})
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestClassifyTimeoutIsDependencyUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := New(server.URL, 50*time.Millisecond).Classify(context.Background(), domain.ClassificationRequest{Token: "t"})
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable on timeout, got %v", err)
	}
}

func TestClassifyRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"category":"LETTER","confidence":"0.7"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		BreakerEnabled:      false,
	})
	client := New(server.URL, time.Second, WithResilienceExecutor(exec))

	resp, err := client.Classify(context.Background(), domain.ClassificationRequest{Token: "t"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if calls.Load() != 2 || *resp.Confidence != 0.7 {
		t.Fatalf("expected one retry, calls=%d resp=%+v", calls.Load(), resp)
	}
}

func TestClassifyGarbageBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond})
	_, err := New(server.URL, time.Second, WithResilienceExecutor(exec)).
		Classify(context.Background(), domain.ClassificationRequest{Token: "t"})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestClassifyRequiresToken(t *testing.T) {
	_, err := New("http://classifier.invalid", time.Second).Classify(context.Background(), domain.ClassificationRequest{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
