package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
	"github.com/kirillkom/scan-triage/internal/observability/metrics"
)

const (
	actorHeader     = "X-User"
	serviceName     = "scan-triage-api"
	backpressureMax = 250 * time.Millisecond
)

var openAPIRouter = sync.OnceValues(loadOpenAPIRouter)

// Services are the inbound ports the REST surface is built on.
type Services struct {
	Documents      ports.DocumentReader
	Ingest         ports.DocumentIngestor
	Classification ports.ClassificationService
	Actions        ports.DocumentActions
	Sync           ports.InboxSynchronizer
	Events         ports.EventReader
}

// HealthFunc reports extra component details for /healthz.
type HealthFunc func(ctx context.Context) map[string]any

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithHealth(fn HealthFunc) Option {
	return func(rt *Router) {
		rt.health = fn
	}
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	health   HealthFunc
}

func NewRouter(cfg config.Config, services Services, opts ...Option) *Router {
	rt := &Router{
		cfg:      cfg,
		services: services,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("GET /documents", rt.listDocuments)
	mux.HandleFunc("GET /documents/next", rt.nextDocument)
	mux.HandleFunc("GET /documents/export", rt.exportDocuments)
	mux.HandleFunc("POST /documents/sync", rt.syncInbox)
	mux.HandleFunc("GET /documents/{id}", rt.getDocument)
	mux.HandleFunc("PUT /documents/{id}", rt.updateDocument)
	// Older clients soft-delete with DELETE on the document itself.
	mux.HandleFunc("DELETE /documents/{id}", rt.deleteDocument)
	mux.HandleFunc("GET /documents/{id}/file", rt.getDocumentFile)
	mux.HandleFunc("GET /documents/{id}/events", rt.getDocumentEvents)
	mux.HandleFunc("POST /documents/{id}/classify", rt.classifyDocument)
	mux.HandleFunc("POST /documents/{id}/reclassify", rt.reclassifyDocument)
	mux.HandleFunc("POST /documents/{id}/process", rt.processDocument)
	mux.HandleFunc("POST /documents/{id}/hold", rt.holdDocument)
	mux.HandleFunc("POST /documents/{id}/delete", rt.deleteDocument)
	mux.HandleFunc("POST /upload", rt.uploadDocument)

	var handler http.Handler = mux
	validator, err := openAPIRouter()
	if err != nil {
		slog.Error("openapi_router_unavailable", "error", err)
	} else {
		handler = openAPIValidationMiddleware(validator, handler)
	}

	reject := rt.recordRejected
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureMax, reject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, reject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return recoverMiddleware(handler)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if rt.health != nil {
		for k, v := range rt.health(r.Context()) {
			payload[k] = v
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func actorFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

// requireActor writes a 400 and returns false when the actor header is absent.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := actorFromRequest(r)
	if actor == "" {
		writeInvalid(w, actorHeader+" header is required")
		return "", false
	}
	return actor, true
}

// parseStatusFilter reads a comma separated status list; empty means no filter.
func parseStatusFilter(r *http.Request) ([]domain.DocumentStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	var out []domain.DocumentStatus
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		status, err := domain.ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
