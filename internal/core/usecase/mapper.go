package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

// FolderMapper keeps a document's status and the folder holding its file in
// step. Callers must hold the document lock for the whole call.
type FolderMapper struct {
	registry *Registry
	folders  ports.FolderStore
	events   ports.EventPublisher
	metrics  ports.LifecycleMetrics
	clock    ports.Clock
}

func NewFolderMapper(
	registry *Registry,
	folders ports.FolderStore,
	events ports.EventPublisher,
	metrics ports.LifecycleMetrics,
	clock ports.Clock,
) *FolderMapper {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clock == nil {
		clock = ports.SystemClock
	}
	return &FolderMapper{
		registry: registry,
		folders:  folders,
		events:   events,
		metrics:  metrics,
		clock:    clock,
	}
}

// MoveTo relocates the file into the folder of target and only then commits
// target together with patch. On failure the record is left untouched.
func (m *FolderMapper) MoveTo(
	ctx context.Context,
	doc *domain.Document,
	target domain.DocumentStatus,
	patch domain.DocumentPatch,
) (*domain.Document, error) {
	if !target.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "move document", fmt.Errorf("unknown status %q", target))
	}
	from := doc.Status

	if err := m.folders.Move(ctx, doc.Filename, from, target); err != nil {
		return nil, fmt.Errorf("move %s from %s to %s: %w", doc.ID, from, target, err)
	}

	patch.Status = &target
	updated, err := m.registry.Update(ctx, doc.ID, patch)
	if err != nil {
		if rollbackErr := m.folders.Move(ctx, doc.Filename, target, from); rollbackErr != nil {
			slog.Error("move_rollback_failed",
				"document_id", doc.ID,
				"from", target,
				"to", from,
				"error", rollbackErr,
			)
		}
		return nil, fmt.Errorf("commit status %s: %w", target, err)
	}

	if from == domain.StatusProcessed && target != domain.StatusProcessed {
		m.withdrawRecord(ctx, doc.ID)
	}

	m.metrics.ObserveTransition(from, target)
	publishEvent(ctx, m.events, domain.LifecycleEvent{
		DocumentID: updated.ID,
		Filename:   updated.Filename,
		Type:       domain.EventTransitioned,
		From:       from,
		To:         target,
		Actor:      updated.User,
		Confidence: updated.Confidence,
		At:         updated.UpdatedAt,
	})
	return updated, nil
}

// Process moves the document to the outbox and writes its side-record. The
// side-record is written first and withdrawn again if the move fails.
func (m *FolderMapper) Process(ctx context.Context, doc *domain.Document, patch domain.DocumentPatch) (*domain.Document, error) {
	record := domain.ProcessingRecord{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Status:      domain.StatusProcessed,
		Metadata:    doc.Metadata.Merge(patch.Metadata),
		Confidence:  doc.Confidence,
		User:        doc.User,
		ProcessedAt: m.clock(),
	}
	if patch.Confidence != nil {
		record.Confidence = patch.Confidence
	}
	if patch.User != "" {
		record.User = patch.User
	}

	if err := m.folders.WriteProcessingRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("write processing record for %s: %w", doc.ID, err)
	}

	updated, err := m.MoveTo(ctx, doc, domain.StatusProcessed, patch)
	if err != nil {
		m.withdrawRecord(ctx, doc.ID)
		return nil, err
	}
	return updated, nil
}

// withdrawRecord drops the side-record of a document that is no longer in
// the outbox. A failure is logged only.
func (m *FolderMapper) withdrawRecord(ctx context.Context, documentID string) {
	if err := m.folders.RemoveProcessingRecord(ctx, documentID); err != nil {
		slog.Warn("processing_record_cleanup_failed", "document_id", documentID, "error", err)
	}
}

func publishEvent(ctx context.Context, publisher ports.EventPublisher, event domain.LifecycleEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("event_publish_failed",
			"document_id", event.DocumentID,
			"type", event.Type,
			"error", err,
		)
	}
}
