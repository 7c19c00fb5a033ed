package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

// PurgeUseCase permanently removes soft-deleted documents. A zero window
// purges every deleted document regardless of age.
type PurgeUseCase struct {
	registry *Registry
	locks    *DocumentLocks
	folders  ports.FolderStore
	events   ports.EventPublisher
	metrics  ports.LifecycleMetrics
	clock    ports.Clock
	window   time.Duration
}

func NewPurgeUseCase(
	registry *Registry,
	locks *DocumentLocks,
	folders ports.FolderStore,
	events ports.EventPublisher,
	metrics ports.LifecycleMetrics,
	clock ports.Clock,
	window time.Duration,
) *PurgeUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clock == nil {
		clock = ports.SystemClock
	}
	if window < 0 {
		window = 0
	}
	return &PurgeUseCase{
		registry: registry,
		locks:    locks,
		folders:  folders,
		events:   events,
		metrics:  metrics,
		clock:    clock,
		window:   window,
	}
}

func (uc *PurgeUseCase) JobName() string {
	if uc.window == 0 {
		return "immediate_purge"
	}
	return "retention_purge"
}

func (uc *PurgeUseCase) Purge(ctx context.Context) (domain.PurgeReport, error) {
	start := time.Now()
	report := domain.PurgeReport{Purged: []string{}}

	deleted, err := uc.registry.List(ctx, domain.DocumentFilter{
		Statuses: []domain.DocumentStatus{domain.StatusDeleted},
		Order:    domain.OldestFirst,
	})
	if err != nil {
		err = fmt.Errorf("list deleted documents: %w", err)
		uc.metrics.ObserveSweep(uc.JobName(), time.Since(start), 0, err)
		return report, err
	}

	cutoff := uc.clock().Add(-uc.window)
	for i := range deleted {
		if ctx.Err() != nil {
			break
		}
		candidate := deleted[i]
		if !uc.expired(&candidate, cutoff) {
			continue
		}

		unlock, ok := uc.locks.TryLock(documentKey(candidate.ID))
		if !ok {
			report.Skipped++
			continue
		}
		purged, err := uc.purgeOne(ctx, candidate.ID, cutoff)
		unlock()

		switch {
		case err != nil:
			report.Failed++
			slog.Warn("purge_document_failed", "document_id", candidate.ID, "error", err)
		case purged != nil:
			report.Purged = append(report.Purged, purged.ID)
			publishEvent(ctx, uc.events, domain.LifecycleEvent{
				DocumentID: purged.ID,
				Filename:   purged.Filename,
				Type:       domain.EventPurged,
				From:       domain.StatusDeleted,
				Actor:      domain.SystemActor,
				At:         uc.clock(),
			})
		}
	}

	uc.metrics.ObserveSweep(uc.JobName(), time.Since(start), len(report.Purged), nil)
	uc.metrics.SetStatusCounts(uc.registry.StatusCounts())
	if len(report.Purged) > 0 || report.Failed > 0 {
		slog.Info("purge_completed",
			"job", uc.JobName(),
			"purged", len(report.Purged),
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report, ctx.Err()
}

func (uc *PurgeUseCase) expired(doc *domain.Document, cutoff time.Time) bool {
	if uc.window == 0 {
		return true
	}
	return doc.UpdatedAt.Before(cutoff)
}

// purgeOne deletes the file before the record so a failed delete leaves the
// document visible for the next pass.
func (uc *PurgeUseCase) purgeOne(ctx context.Context, documentID string, cutoff time.Time) (*domain.Document, error) {
	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if doc.Status != domain.StatusDeleted || !uc.expired(doc, cutoff) {
		return nil, nil
	}

	if err := uc.folders.Remove(ctx, domain.StatusDeleted, doc.Filename); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
		return nil, fmt.Errorf("remove file %s: %w", doc.Filename, err)
	}
	if err := uc.registry.Remove(ctx, doc.ID); err != nil {
		return nil, err
	}
	if err := uc.folders.RemoveProcessingRecord(ctx, doc.ID); err != nil {
		slog.Warn("processing_record_cleanup_failed", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}
