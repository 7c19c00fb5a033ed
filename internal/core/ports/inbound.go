package ports

import (
	"context"
	"io"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// DocumentReader is the inbound read model of the registry.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	Next(ctx context.Context, statuses []domain.DocumentStatus) (*domain.Document, error)
	OpenFile(ctx context.Context, id string) (*domain.Document, io.ReadCloser, error)
}

// DocumentIngestor accepts manual uploads.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader, actor string) (*domain.Document, error)
}

// ClassificationService runs the classification routing policy.
type ClassificationService interface {
	Classify(ctx context.Context, documentID, actor string) (*domain.Transition, error)
	Reclassify(ctx context.Context, documentID, actor string) (*domain.Transition, error)
}

// UpdateRequest is a manual partial update of a document.
type UpdateRequest struct {
	Metadata   domain.Metadata
	Confidence *float64
	Mode       *domain.Mode
	Status     *domain.DocumentStatus
}

// DocumentActions are the explicit user-triggered transitions.
type DocumentActions interface {
	Update(ctx context.Context, documentID string, req UpdateRequest, actor string) (*domain.Transition, error)
	Process(ctx context.Context, documentID, actor string) (*domain.Transition, error)
	Hold(ctx context.Context, documentID, actor string) (*domain.Transition, error)
	Delete(ctx context.Context, documentID, actor string) (*domain.Transition, error)
}

// InboxSynchronizer runs a discovery pass on demand.
type InboxSynchronizer interface {
	Discover(ctx context.Context) (domain.DiscoveryReport, error)
}

// EventReader exposes the audit trail of a document.
type EventReader interface {
	Events(ctx context.Context, documentID string) ([]domain.LifecycleEvent, error)
}
