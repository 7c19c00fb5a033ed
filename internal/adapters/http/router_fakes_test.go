package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

var fixedTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleDocument(id string, status domain.DocumentStatus) domain.Document {
	return domain.Document{
		ID:        id,
		Filename:  id + ".pdf",
		Status:    status,
		Origin:    domain.OriginScanner,
		Metadata:  domain.Metadata{domain.MetaCategory: "Rechnung"},
		Mode:      domain.ModeAuto,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

type docsFake struct {
	docs       []domain.Document
	err        error
	lastFilter domain.DocumentFilter
	lastNext   []domain.DocumentStatus
	file       []byte
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, doc := range f.docs {
		if doc.ID == id {
			out := doc
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)
}

func (f *docsFake) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Document
	for _, doc := range f.docs {
		if filter.Matches(&doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *docsFake) Next(_ context.Context, statuses []domain.DocumentStatus) (*domain.Document, error) {
	f.lastNext = statuses
	if len(f.docs) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "next document", io.EOF)
	}
	out := f.docs[0]
	return &out, nil
}

func (f *docsFake) OpenFile(ctx context.Context, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, io.NopCloser(bytes.NewReader(f.file)), nil
}

type ingestFake struct {
	err      error
	filename string
	actor    string
	body     []byte
}

func (f *ingestFake) Upload(_ context.Context, filename string, body io.Reader, actor string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.filename, f.actor, f.body = filename, actor, raw
	doc := sampleDocument("doc-new", domain.StatusInbox)
	doc.Filename = filename
	doc.Origin = domain.OriginManual
	return &doc, nil
}

type actionCall struct {
	name  string
	id    string
	actor string
}

type actionsFake struct {
	mu      sync.Mutex
	calls   []actionCall
	err     error
	lastReq ports.UpdateRequest
}

func (f *actionsFake) record(name, id, actor string, to domain.DocumentStatus) (*domain.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, actionCall{name: name, id: id, actor: actor})
	if f.err != nil {
		return nil, f.err
	}
	doc := sampleDocument(id, to)
	return &domain.Transition{Document: &doc, From: domain.StatusInbox, To: to, Changed: true}, nil
}

func (f *actionsFake) Update(_ context.Context, id string, req ports.UpdateRequest, actor string) (*domain.Transition, error) {
	f.lastReq = req
	return f.record("update", id, actor, domain.StatusInbox)
}

func (f *actionsFake) Process(_ context.Context, id, actor string) (*domain.Transition, error) {
	return f.record("process", id, actor, domain.StatusProcessed)
}

func (f *actionsFake) Hold(_ context.Context, id, actor string) (*domain.Transition, error) {
	return f.record("hold", id, actor, domain.StatusHold)
}

func (f *actionsFake) Delete(_ context.Context, id, actor string) (*domain.Transition, error) {
	return f.record("delete", id, actor, domain.StatusDeleted)
}

func (f *actionsFake) Classify(_ context.Context, id, actor string) (*domain.Transition, error) {
	return f.record("classify", id, actor, domain.StatusProcessed)
}

func (f *actionsFake) Reclassify(_ context.Context, id, actor string) (*domain.Transition, error) {
	return f.record("reclassify", id, actor, domain.StatusProcessed)
}

type syncFake struct {
	report domain.DiscoveryReport
	calls  int
}

func (f *syncFake) Discover(context.Context) (domain.DiscoveryReport, error) {
	f.calls++
	return f.report, nil
}

type eventsFake struct {
	events map[string][]domain.LifecycleEvent
}

func (f eventsFake) Events(_ context.Context, id string) ([]domain.LifecycleEvent, error) {
	return f.events[id], nil
}

type routerFixture struct {
	docs    *docsFake
	ingest  *ingestFake
	actions *actionsFake
	sync    *syncFake
	events  eventsFake
	handler http.Handler
}

func newFixture(cfg config.Config) *routerFixture {
	f := &routerFixture{
		docs: &docsFake{docs: []domain.Document{
			sampleDocument("doc-1", domain.StatusInbox),
			sampleDocument("doc-2", domain.StatusNeedsReview),
		}},
		ingest:  &ingestFake{},
		actions: &actionsFake{},
		sync:    &syncFake{},
		events:  eventsFake{events: map[string][]domain.LifecycleEvent{}},
	}
	f.handler = NewRouter(cfg, Services{
		Documents:      f.docs,
		Ingest:         f.ingest,
		Classification: f.actions,
		Actions:        f.actions,
		Sync:           f.sync,
		Events:         f.events,
	}).Handler()
	return f
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}
