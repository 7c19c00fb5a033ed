package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

// Registry is the authoritative set of document records. Every mutation is
// written through to the snapshot store; a failed snapshot write is logged and
// the in-memory change is kept.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document

	store     ports.SnapshotStore
	persistMu sync.Mutex

	clock ports.Clock
	newID func() string
}

type RegistryOption func(*Registry)

func WithClock(clock ports.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithIDGenerator(newID func() string) RegistryOption {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
	}
}

func NewRegistry(store ports.SnapshotStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		docs:  make(map[string]*domain.Document),
		store: store,
		clock: ports.SystemClock,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory state with the persisted snapshot.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	docs, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry snapshot: %w", err)
	}

	loaded := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		doc := docs[i]
		if doc.ID == "" || !doc.Status.Valid() {
			slog.Warn("registry_snapshot_entry_skipped", "document_id", doc.ID, "status", doc.Status)
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = domain.Metadata{}
		}
		loaded[doc.ID] = doc.Clone()
	}

	r.mu.Lock()
	r.docs = loaded
	r.mu.Unlock()
	return nil
}

func (r *Registry) Create(ctx context.Context, filename string, origin domain.Origin, actor string) (*domain.Document, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("filename is required"))
	}

	now := r.clock()
	r.mu.Lock()
	for _, existing := range r.docs {
		if existing.Filename == name {
			r.mu.Unlock()
			return nil, domain.WrapError(
				domain.ErrConflict,
				"create document",
				fmt.Errorf("filename %q already tracked by %s", name, existing.ID),
			)
		}
	}
	id := r.newID()
	for {
		if _, taken := r.docs[id]; !taken {
			break
		}
		id = r.newID()
	}
	doc := &domain.Document{
		ID:        id,
		Filename:  name,
		Status:    domain.StatusInbox,
		Origin:    origin,
		Metadata:  domain.Metadata{},
		Mode:      domain.ModeAuto,
		User:      actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.docs[id] = doc
	out := doc.Clone()
	r.mu.Unlock()

	r.persist(ctx)
	return out, nil
}

func (r *Registry) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, notFound("get document", id)
	}
	return doc.Clone(), nil
}

func (r *Registry) FindByFilename(_ context.Context, filename string) (*domain.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, doc := range r.docs {
		if doc.Filename == filename {
			return doc.Clone(), true
		}
	}
	return nil, false
}

// List returns matching documents, newest first unless the filter asks for
// oldest first. Ties are broken by id for a stable order.
func (r *Registry) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	r.mu.RLock()
	out := make([]domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if filter.Matches(doc) {
			out = append(out, *doc.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		if filter.Order == domain.OldestFirst {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

// Next returns the single oldest document in one of the given statuses.
func (r *Registry) Next(ctx context.Context, statuses []domain.DocumentStatus) (*domain.Document, error) {
	docs, err := r.List(ctx, domain.DocumentFilter{Statuses: statuses, Order: domain.OldestFirst})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "next document", fmt.Errorf("no document in %v", statuses))
	}
	return &docs[0], nil
}

func (r *Registry) Update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	now := r.clock()
	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return nil, notFound("update document", id)
	}
	if patch.Status != nil {
		doc.Status = *patch.Status
	}
	if len(patch.Metadata) > 0 {
		doc.Metadata = doc.Metadata.Merge(patch.Metadata)
	}
	if patch.Confidence != nil {
		c := *patch.Confidence
		doc.Confidence = &c
	}
	if patch.Mode != nil {
		doc.Mode = *patch.Mode
	}
	if patch.User != "" {
		doc.User = patch.User
	}
	doc.UpdatedAt = now
	out := doc.Clone()
	r.mu.Unlock()

	r.persist(ctx)
	return out, nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.docs[id]; !ok {
		r.mu.Unlock()
		return notFound("remove document", id)
	}
	delete(r.docs, id)
	r.mu.Unlock()

	r.persist(ctx)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func (r *Registry) StatusCounts() map[domain.DocumentStatus]int {
	counts := make(map[domain.DocumentStatus]int, len(domain.AllStatuses()))
	for _, status := range domain.AllStatuses() {
		counts[status] = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		counts[doc.Status]++
	}
	return counts
}

// persist snapshots under persistMu so the last write always carries the
// latest state.
func (r *Registry) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	snapshot := make([]domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		snapshot = append(snapshot, *doc.Clone())
	}
	r.mu.RUnlock()

	if err := r.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		slog.Error("registry_snapshot_failed", "documents", len(snapshot), "error", err)
	}
}

func notFound(operation, id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
}
