package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

const DefaultUploadMaxBytes int64 = 32 << 20

type IngestDocumentUseCase struct {
	registry  *Registry
	locks     *DocumentLocks
	folders   ports.FolderStore
	validator ports.UploadValidator
	queue     ports.IngestQueue
	events    ports.EventPublisher
	maxBytes  int64
}

func NewIngestDocumentUseCase(
	registry *Registry,
	locks *DocumentLocks,
	folders ports.FolderStore,
	validator ports.UploadValidator,
	queue ports.IngestQueue,
	events ports.EventPublisher,
	maxBytes int64,
) *IngestDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	return &IngestDocumentUseCase{
		registry:  registry,
		locks:     locks,
		folders:   folders,
		validator: validator,
		queue:     queue,
		events:    events,
		maxBytes:  maxBytes,
	}
}

// Upload stores a manually uploaded PDF in the inbox and registers it with
// origin=manual. The filename lock keeps discovery from registering the same
// file while it is being written.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename string,
	body io.Reader,
	actor string,
) (*domain.Document, error) {
	if err := requireActor("upload document", actor); err != nil {
		return nil, err
	}
	name := sanitizeFilename(filename)
	if !isPDFName(name) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("%q is not a pdf", filename))
	}

	data, err := io.ReadAll(io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty upload"))
	}
	if int64(len(data)) > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("upload exceeds %d bytes", uc.maxBytes))
	}
	if uc.validator != nil {
		if err := uc.validator.Validate(data); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "validate pdf", err)
		}
	}

	unlock, ok := uc.locks.TryLock(filenameKey(name))
	if !ok {
		return nil, domain.WrapError(domain.ErrConflict, "upload document", fmt.Errorf("%s is being ingested", name))
	}
	defer unlock()

	if existing, tracked := uc.registry.FindByFilename(ctx, name); tracked {
		return nil, domain.WrapError(domain.ErrConflict, "upload document", fmt.Errorf("%s already tracked by %s", name, existing.ID))
	}
	present, err := uc.folders.Exists(ctx, domain.StatusInbox, name)
	if err != nil {
		return nil, fmt.Errorf("check inbox: %w", err)
	}
	if present {
		return nil, domain.WrapError(domain.ErrConflict, "upload document", fmt.Errorf("%s already present in inbox", name))
	}

	if err := uc.folders.Save(ctx, domain.StatusInbox, name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save upload to inbox: %w", err)
	}

	doc, err := uc.registry.Create(ctx, name, domain.OriginManual, actor)
	if err != nil {
		if rmErr := uc.folders.Remove(ctx, domain.StatusInbox, name); rmErr != nil {
			slog.Error("upload_cleanup_failed", "filename", name, "error", rmErr)
		}
		return nil, fmt.Errorf("create document record: %w", err)
	}

	announceIngested(ctx, uc.events, uc.queue, doc, actor)
	return doc, nil
}

func announceIngested(ctx context.Context, events ports.EventPublisher, queue ports.IngestQueue, doc *domain.Document, actor string) {
	publishEvent(ctx, events, domain.LifecycleEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Type:       domain.EventCreated,
		To:         doc.Status,
		Actor:      actor,
		At:         doc.CreatedAt,
	})
	if queue == nil {
		return
	}
	if err := queue.PublishDocumentIngested(context.WithoutCancel(ctx), doc.ID); err != nil {
		slog.Warn("ingest_publish_failed", "document_id", doc.ID, "error", err)
	}
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") && !strings.HasPrefix(name, ".")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	return base
}
