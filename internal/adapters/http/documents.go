package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, ok := rt.listFiltered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) listFiltered(w http.ResponseWriter, r *http.Request) ([]domain.Document, bool) {
	statuses, err := parseStatusFilter(r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	docs, err := rt.services.Documents.List(r.Context(), domain.DocumentFilter{Statuses: statuses, Order: domain.NewestFirst})
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, true
}

func (rt *Router) nextDocument(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatusFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.services.Documents.Next(r.Context(), statuses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocumentFile(w http.ResponseWriter, r *http.Request) {
	doc, file, err := rt.services.Documents.OpenFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(doc.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		slog.Warn("file_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"document_id", doc.ID,
			"error", err,
		)
	}
}

func (rt *Router) getDocumentEvents(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := rt.services.Events.Events(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

type updatePayload struct {
	Metadata   map[string]string `json:"metadata"`
	Confidence *float64          `json:"confidence"`
	Mode       *string           `json:"mode"`
	Status     *string           `json:"status"`
}

func (p updatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Confidence, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.Mode, validation.In(string(domain.ModeAuto), string(domain.ModeCorrected), string(domain.ModeManual))),
		validation.Field(&p.Status, validation.By(func(value any) error {
			raw, _ := value.(*string)
			if raw == nil {
				return nil
			}
			_, err := domain.ParseStatus(*raw)
			return err
		})),
		validation.Field(&p.Metadata, validation.By(func(value any) error {
			meta, _ := value.(map[string]string)
			for key := range meta {
				if key == "" {
					return errors.New("metadata keys must not be empty")
				}
			}
			return nil
		})),
	)
}

func (p updatePayload) toRequest() ports.UpdateRequest {
	req := ports.UpdateRequest{
		Metadata:   domain.Metadata(p.Metadata),
		Confidence: p.Confidence,
	}
	if p.Mode != nil {
		mode := domain.Mode(*p.Mode)
		req.Mode = &mode
	}
	if p.Status != nil {
		// Validate has already accepted the value.
		status, _ := domain.ParseStatus(*p.Status)
		req.Status = &status
	}
	return req
}

func (rt *Router) updateDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var payload updatePayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		writeInvalid(w, "invalid json: "+err.Error())
		return
	}
	if err := payload.Validate(); err != nil {
		writeInvalid(w, err.Error())
		return
	}

	transition, err := rt.services.Actions.Update(r.Context(), r.PathValue("id"), payload.toRequest(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transition)
}

func (rt *Router) classifyDocument(w http.ResponseWriter, r *http.Request) {
	rt.runTransition(w, r, rt.services.Classification.Classify)
}

func (rt *Router) reclassifyDocument(w http.ResponseWriter, r *http.Request) {
	rt.runTransition(w, r, rt.services.Classification.Reclassify)
}

func (rt *Router) processDocument(w http.ResponseWriter, r *http.Request) {
	rt.runTransition(w, r, rt.services.Actions.Process)
}

func (rt *Router) holdDocument(w http.ResponseWriter, r *http.Request) {
	rt.runTransition(w, r, rt.services.Actions.Hold)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	rt.runTransition(w, r, rt.services.Actions.Delete)
}

type transitionFunc func(ctx context.Context, documentID, actor string) (*domain.Transition, error)

// runTransition is shared by every per-document action route.
func (rt *Router) runTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	transition, err := fn(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transition)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	maxBytes := rt.cfg.UploadMaxBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}
	file, header, err := uploadedFile(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeInvalid(w, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
			return
		}
		writeInvalid(w, "multipart field 'pdf' is required")
		return
	}
	defer file.Close()

	doc, err := rt.services.Ingest.Upload(r.Context(), header.Filename, file, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.ObserveUpload(header.Size)
	}
	writeJSON(w, http.StatusCreated, doc)
}

// uploadedFile accepts the "pdf" field and, for older clients, "file".
func uploadedFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, err
	}
	file, header, err := r.FormFile("pdf")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("file")
	}
	return file, header, err
}

type syncResponse struct {
	Report    domain.DiscoveryReport `json:"report"`
	Documents []domain.Document      `json:"documents"`
}

func (rt *Router) syncInbox(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	if _, err := parseStatusFilter(r); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := rt.services.Sync.Discover(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, ok := rt.listFiltered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Report: report, Documents: docs})
}
