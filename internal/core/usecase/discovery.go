package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

// DiscoveryJobName labels discovery passes in logs and metrics.
const DiscoveryJobName = "inbox_discovery"

// InboxDiscoveryUseCase reconciles the inbox folder with the registry in
// both directions.
type InboxDiscoveryUseCase struct {
	registry *Registry
	locks    *DocumentLocks
	folders  ports.FolderStore
	queue    ports.IngestQueue
	events   ports.EventPublisher
	metrics  ports.LifecycleMetrics
	clock    ports.Clock
}

func NewInboxDiscoveryUseCase(
	registry *Registry,
	locks *DocumentLocks,
	folders ports.FolderStore,
	queue ports.IngestQueue,
	events ports.EventPublisher,
	metrics ports.LifecycleMetrics,
	clock ports.Clock,
) *InboxDiscoveryUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clock == nil {
		clock = ports.SystemClock
	}
	return &InboxDiscoveryUseCase{
		registry: registry,
		locks:    locks,
		folders:  folders,
		queue:    queue,
		events:   events,
		metrics:  metrics,
		clock:    clock,
	}
}

// Discover registers untracked inbox files (origin=scanner) and drops inbox
// records whose file vanished. Per-file failures are counted, not returned.
func (uc *InboxDiscoveryUseCase) Discover(ctx context.Context) (domain.DiscoveryReport, error) {
	start := time.Now()
	report := domain.DiscoveryReport{Created: []string{}, Removed: []string{}}

	names, err := uc.folders.List(ctx, domain.StatusInbox)
	if err != nil {
		err = fmt.Errorf("list inbox: %w", err)
		uc.metrics.ObserveSweep(DiscoveryJobName, time.Since(start), 0, err)
		return report, err
	}

	present := make(map[string]struct{}, len(names))
	for _, name := range names {
		if !isPDFName(name) {
			continue
		}
		present[name] = struct{}{}
		if ctx.Err() != nil {
			break
		}
		uc.discoverFile(ctx, name, &report)
	}

	if ctx.Err() == nil {
		uc.reconcileMissing(ctx, present, &report)
	}

	affected := len(report.Created) + len(report.Removed)
	uc.metrics.ObserveSweep(DiscoveryJobName, time.Since(start), affected, nil)
	uc.metrics.SetStatusCounts(uc.registry.StatusCounts())
	if affected > 0 || report.Failed > 0 {
		slog.Info("inbox_discovery_completed",
			"created", len(report.Created),
			"removed", len(report.Removed),
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report, ctx.Err()
}

func (uc *InboxDiscoveryUseCase) discoverFile(ctx context.Context, name string, report *domain.DiscoveryReport) {
	if _, tracked := uc.registry.FindByFilename(ctx, name); tracked {
		return
	}

	// An upload of the same name holds this lock while it writes the file.
	unlock, ok := uc.locks.TryLock(filenameKey(name))
	if !ok {
		report.Skipped++
		return
	}
	defer unlock()

	if _, tracked := uc.registry.FindByFilename(ctx, name); tracked {
		return
	}

	doc, err := uc.registry.Create(ctx, name, domain.OriginScanner, domain.SystemActor)
	if err != nil {
		report.Failed++
		slog.Warn("inbox_discovery_create_failed", "filename", name, "error", err)
		return
	}
	report.Created = append(report.Created, doc.ID)
	announceIngested(ctx, uc.events, uc.queue, doc, domain.SystemActor)
}

func (uc *InboxDiscoveryUseCase) reconcileMissing(ctx context.Context, present map[string]struct{}, report *domain.DiscoveryReport) {
	inbox, err := uc.registry.List(ctx, domain.DocumentFilter{
		Statuses: []domain.DocumentStatus{domain.StatusInbox},
		Order:    domain.OldestFirst,
	})
	if err != nil {
		report.Failed++
		slog.Warn("inbox_discovery_list_failed", "error", err)
		return
	}

	for i := range inbox {
		candidate := inbox[i]
		if _, ok := present[candidate.Filename]; ok {
			continue
		}

		// A document mid-transition is not missing, only moving.
		unlock, ok := uc.locks.TryLock(documentKey(candidate.ID))
		if !ok {
			report.Skipped++
			continue
		}
		removed, err := uc.removeIfMissing(ctx, candidate.ID)
		unlock()

		switch {
		case err != nil:
			report.Failed++
			slog.Warn("inbox_discovery_remove_failed", "document_id", candidate.ID, "error", err)
		case removed != nil:
			report.Removed = append(report.Removed, removed.ID)
			publishEvent(ctx, uc.events, domain.LifecycleEvent{
				DocumentID: removed.ID,
				Filename:   removed.Filename,
				Type:       domain.EventRemoved,
				From:       removed.Status,
				Actor:      domain.SystemActor,
				At:         uc.clock(),
			})
		}
	}
}

// removeIfMissing re-checks under the document lock; the listing is stale by
// the time the lock is held.
func (uc *InboxDiscoveryUseCase) removeIfMissing(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if doc.Status != domain.StatusInbox {
		return nil, nil
	}
	exists, err := uc.folders.Exists(ctx, domain.StatusInbox, doc.Filename)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	if err := uc.registry.Remove(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}
