package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// SnapshotStore persists the full registry as one durable snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) ([]domain.Document, error)
	Save(ctx context.Context, docs []domain.Document) error
}

// FolderStore owns the status folders. It is the only component that touches
// document files.
type FolderStore interface {
	Exists(ctx context.Context, status domain.DocumentStatus, filename string) (bool, error)
	Move(ctx context.Context, filename string, from, to domain.DocumentStatus) error
	Remove(ctx context.Context, status domain.DocumentStatus, filename string) error
	List(ctx context.Context, status domain.DocumentStatus) ([]string, error)
	Save(ctx context.Context, status domain.DocumentStatus, filename string, data io.Reader) error
	Open(ctx context.Context, status domain.DocumentStatus, filename string) (io.ReadCloser, error)
	WriteProcessingRecord(ctx context.Context, record domain.ProcessingRecord) error
	RemoveProcessingRecord(ctx context.Context, documentID string) error
}

// UploadValidator rejects payloads that are not readable PDFs.
type UploadValidator interface {
	Validate(data []byte) error
}

// Classifier is the external classification service.
type Classifier interface {
	Classify(ctx context.Context, req domain.ClassificationRequest) (domain.ClassifierResponse, error)
}

// EventPublisher receives lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}

// IngestQueue announces newly ingested documents.
type IngestQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// LifecycleMetrics records lifecycle observations.
type LifecycleMetrics interface {
	ObserveTransition(from, to domain.DocumentStatus)
	ObserveClassification(outcome string, duration time.Duration)
	ObserveSweep(job string, duration time.Duration, affected int, err error)
	SetStatusCounts(counts map[domain.DocumentStatus]int)
}
