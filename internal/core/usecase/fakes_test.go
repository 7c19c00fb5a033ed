package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

type snapshotFake struct {
	mu    sync.Mutex
	docs  []domain.Document
	saves int
	err   error
}

func (f *snapshotFake) Load(context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *snapshotFake) Save(_ context.Context, docs []domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	f.docs = make([]domain.Document, len(docs))
	copy(f.docs, docs)
	return nil
}

type folderFake struct {
	mu       sync.Mutex
	files    map[domain.DocumentStatus]map[string][]byte
	records  map[string]domain.ProcessingRecord
	moveErr  error
	listErr  error
	removeFn func(domain.DocumentStatus, string) error
	moves    int
}

func newFolderFake() *folderFake {
	return &folderFake{
		files:   make(map[domain.DocumentStatus]map[string][]byte),
		records: make(map[string]domain.ProcessingRecord),
	}
}

func (f *folderFake) put(status domain.DocumentStatus, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[status] == nil {
		f.files[status] = make(map[string][]byte)
	}
	f.files[status][name] = []byte("%PDF-1.4")
}

func (f *folderFake) has(status domain.DocumentStatus, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[status][name]
	return ok
}

func (f *folderFake) record(id string) (domain.ProcessingRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *folderFake) drop(status domain.DocumentStatus, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files[status], name)
}

func (f *folderFake) Exists(_ context.Context, status domain.DocumentStatus, name string) (bool, error) {
	return f.has(status, name), nil
}

func (f *folderFake) Move(_ context.Context, name string, from, to domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves++
	if f.moveErr != nil {
		return f.moveErr
	}
	data, ok := f.files[from][name]
	if !ok {
		return domain.ErrFileNotFound
	}
	delete(f.files[from], name)
	if f.files[to] == nil {
		f.files[to] = make(map[string][]byte)
	}
	f.files[to][name] = data
	return nil
}

func (f *folderFake) Remove(_ context.Context, status domain.DocumentStatus, name string) error {
	if f.removeFn != nil {
		if err := f.removeFn(status, name); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[status][name]; !ok {
		return domain.ErrFileNotFound
	}
	delete(f.files[status], name)
	return nil
}

func (f *folderFake) List(_ context.Context, status domain.DocumentStatus) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.files[status]))
	for name := range f.files[status] {
		out = append(out, name)
	}
	return out, nil
}

func (f *folderFake) Save(_ context.Context, status domain.DocumentStatus, name string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[status] == nil {
		f.files[status] = make(map[string][]byte)
	}
	f.files[status][name] = raw
	return nil
}

func (f *folderFake) Open(_ context.Context, status domain.DocumentStatus, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[status][name]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *folderFake) WriteProcessingRecord(_ context.Context, rec domain.ProcessingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
	return nil
}

func (f *folderFake) RemoveProcessingRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

type classifierFake struct {
	mu    sync.Mutex
	resp  domain.ClassifierResponse
	err   error
	calls []domain.ClassificationRequest
	block chan struct{}
}

func (f *classifierFake) Classify(ctx context.Context, req domain.ClassificationRequest) (domain.ClassifierResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.ClassifierResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.ClassifierResponse{}, f.err
	}
	return f.resp, nil
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
	err    error
}

func (f *eventsFake) Publish(_ context.Context, event domain.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventsFake) types() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type queueFake struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires the use cases the same way bootstrap does, over fakes.
type harness struct {
	clock      *fixedClock
	store      *snapshotFake
	folders    *folderFake
	classifier *classifierFake
	events     *eventsFake
	queue      *queueFake
	registry   *Registry
	locks      *DocumentLocks
	mapper     *FolderMapper
	classify   *ClassificationUseCase
	actions    *DocumentActionsUseCase
	ingest     *IngestDocumentUseCase
	discovery  *InboxDiscoveryUseCase
}

func newHarness() *harness {
	h := &harness{
		clock:      newFixedClock(),
		store:      &snapshotFake{},
		folders:    newFolderFake(),
		classifier: &classifierFake{},
		events:     &eventsFake{},
		queue:      &queueFake{},
		locks:      NewDocumentLocks(),
	}
	seq := 0
	h.registry = NewRegistry(h.store, WithClock(h.clock.Now), WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("doc-%d", seq)
	}))
	h.mapper = NewFolderMapper(h.registry, h.folders, h.events, nil, h.clock.Now)
	h.classify = NewClassificationUseCase(h.registry, h.locks, h.mapper, h.classifier, h.events, nil, DefaultClassificationConfig())
	h.actions = NewDocumentActionsUseCase(h.registry, h.locks, h.mapper, h.events)
	h.ingest = NewIngestDocumentUseCase(h.registry, h.locks, h.folders, nil, h.queue, h.events, 0)
	h.discovery = NewInboxDiscoveryUseCase(h.registry, h.locks, h.folders, h.queue, h.events, nil, h.clock.Now)
	return h
}

func (h *harness) purge(window time.Duration) *PurgeUseCase {
	return NewPurgeUseCase(h.registry, h.locks, h.folders, h.events, nil, h.clock.Now, window)
}

// seed registers a scanner document whose file sits in the inbox.
func (h *harness) seed(name string) *domain.Document {
	h.folders.put(domain.StatusInbox, name)
	doc, err := h.registry.Create(context.Background(), name, domain.OriginScanner, domain.SystemActor)
	if err != nil {
		panic(err)
	}
	return doc
}

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func noisyResponse(category string, scores ...float64) domain.ClassifierResponse {
	resp := domain.ClassifierResponse{Shape: domain.ShapeNoisy}
	fields := []*domain.ClassifierField{&resp.Category, &resp.DocID, &resp.Subject, &resp.DocDate}
	values := []string{category, "RE-2024-17", "Strom Maerz", "2024-03-01"}
	for i, score := range scores {
		if i >= len(fields) {
			break
		}
		fields[i].Value = strPtr(values[i])
		fields[i].Score = floatPtr(score)
	}
	return resp
}
