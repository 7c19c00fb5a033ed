package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

// activeStatuses is what /documents/next serves when no status is given.
var activeStatuses = []domain.DocumentStatus{
	domain.StatusInbox,
	domain.StatusNeedsReview,
	domain.StatusProcessing,
	domain.StatusHold,
}

type QueryUseCase struct {
	registry *Registry
	folders  ports.FolderStore
}

func NewQueryUseCase(registry *Registry, folders ports.FolderStore) *QueryUseCase {
	return &QueryUseCase{
		registry: registry,
		folders:  folders,
	}
}

func (uc *QueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.registry.GetByID(ctx, id)
}

func (uc *QueryUseCase) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	return uc.registry.List(ctx, filter)
}

func (uc *QueryUseCase) Next(ctx context.Context, statuses []domain.DocumentStatus) (*domain.Document, error) {
	if len(statuses) == 0 {
		statuses = activeStatuses
	}
	return uc.registry.Next(ctx, statuses)
}

// OpenFile returns the document together with a reader over its file in the
// folder of its current status. The caller closes the reader.
func (uc *QueryUseCase) OpenFile(ctx context.Context, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := uc.registry.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := uc.folders.Open(ctx, doc.Status, doc.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("open file of %s: %w", doc.ID, err)
	}
	return doc, rc, nil
}
