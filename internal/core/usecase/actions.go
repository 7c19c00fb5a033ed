package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

type DocumentActionsUseCase struct {
	registry *Registry
	locks    *DocumentLocks
	mapper   *FolderMapper
	events   ports.EventPublisher
}

func NewDocumentActionsUseCase(
	registry *Registry,
	locks *DocumentLocks,
	mapper *FolderMapper,
	events ports.EventPublisher,
) *DocumentActionsUseCase {
	return &DocumentActionsUseCase{
		registry: registry,
		locks:    locks,
		mapper:   mapper,
		events:   events,
	}
}

func (uc *DocumentActionsUseCase) Hold(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	return uc.forceStatus(ctx, documentID, actor, domain.StatusHold)
}

// Delete is a soft delete; the purge job removes the file later.
func (uc *DocumentActionsUseCase) Delete(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	return uc.forceStatus(ctx, documentID, actor, domain.StatusDeleted)
}

// Process forces the document into the outbox regardless of its confidence.
func (uc *DocumentActionsUseCase) Process(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	if err := requireActor("process document", actor); err != nil {
		return nil, err
	}
	unlock, err := uc.locks.acquireDocument(documentID, "process document")
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == domain.StatusProcessed {
		return unchanged(doc), nil
	}
	if err := rejectDeleted("process document", doc); err != nil {
		return nil, err
	}

	mode := domain.ModeCorrected
	if doc.Mode == domain.ModeManual {
		mode = domain.ModeManual
	}
	updated, err := uc.mapper.Process(ctx, doc, domain.DocumentPatch{Mode: &mode, User: actor})
	if err != nil {
		return nil, err
	}
	return &domain.Transition{Document: updated, From: doc.Status, To: updated.Status, Changed: true}, nil
}

// Update applies a manual correction. A status change goes through the folder
// mapper like every other transition.
func (uc *DocumentActionsUseCase) Update(
	ctx context.Context,
	documentID string,
	req ports.UpdateRequest,
	actor string,
) (*domain.Transition, error) {
	if err := requireActor("update document", actor); err != nil {
		return nil, err
	}
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	unlock, err := uc.locks.acquireDocument(documentID, "update document")
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := rejectDeleted("update document", doc); err != nil {
		return nil, err
	}

	patch := domain.DocumentPatch{
		Metadata:   req.Metadata,
		Confidence: req.Confidence,
		Mode:       req.Mode,
		User:       actor,
	}
	if patch.Mode == nil && len(req.Metadata) > 0 && doc.Mode != domain.ModeManual {
		corrected := domain.ModeCorrected
		patch.Mode = &corrected
	}

	var updated *domain.Document
	switch {
	case req.Status != nil && *req.Status != doc.Status && *req.Status == domain.StatusProcessed:
		updated, err = uc.mapper.Process(ctx, doc, patch)
	case req.Status != nil && *req.Status != doc.Status:
		updated, err = uc.mapper.MoveTo(ctx, doc, *req.Status, patch)
	default:
		updated, err = uc.registry.Update(ctx, doc.ID, patch)
		if err == nil {
			publishEvent(ctx, uc.events, domain.LifecycleEvent{
				DocumentID: updated.ID,
				Filename:   updated.Filename,
				Type:       domain.EventUpdated,
				From:       doc.Status,
				To:         updated.Status,
				Actor:      actor,
				Confidence: updated.Confidence,
				At:         updated.UpdatedAt,
			})
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.Transition{Document: updated, From: doc.Status, To: updated.Status, Changed: true}, nil
}

func (uc *DocumentActionsUseCase) forceStatus(
	ctx context.Context,
	documentID, actor string,
	target domain.DocumentStatus,
) (*domain.Transition, error) {
	operation := fmt.Sprintf("move document to %s", target)
	if err := requireActor(operation, actor); err != nil {
		return nil, err
	}
	unlock, err := uc.locks.acquireDocument(documentID, operation)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == target {
		return unchanged(doc), nil
	}
	if err := rejectDeleted(operation, doc); err != nil {
		return nil, err
	}

	updated, err := uc.mapper.MoveTo(ctx, doc, target, domain.DocumentPatch{User: actor})
	if err != nil {
		return nil, err
	}
	return &domain.Transition{Document: updated, From: doc.Status, To: target, Changed: true}, nil
}

func validateUpdate(req ports.UpdateRequest) error {
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return domain.WrapError(domain.ErrInvalidInput, "update document", fmt.Errorf("confidence %v outside [0,1]", *req.Confidence))
	}
	if req.Mode != nil && !req.Mode.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "update document", fmt.Errorf("unknown mode %q", *req.Mode))
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "update document", fmt.Errorf("unknown status %q", *req.Status))
	}
	return nil
}

func requireActor(operation, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domain.WrapError(domain.ErrInvalidInput, operation, errors.New("actor is required"))
	}
	return nil
}

// Deleted documents belong to the purge job only.
func rejectDeleted(operation string, doc *domain.Document) error {
	if doc.Status != domain.StatusDeleted {
		return nil
	}
	return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("document %s is deleted", doc.ID))
}

func unchanged(doc *domain.Document) *domain.Transition {
	return &domain.Transition{Document: doc, From: doc.Status, To: doc.Status, Changed: false}
}
