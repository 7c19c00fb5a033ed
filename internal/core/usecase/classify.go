package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

const defaultConfidence = 0.5

type ClassificationConfig struct {
	ReviewThreshold      float64
	AutoProcessThreshold float64
	// CategoryLabels maps classifier kinds (INVOICE) to metadata labels (Rechnung).
	CategoryLabels map[string]string
}

func DefaultClassificationConfig() ClassificationConfig {
	return ClassificationConfig{
		ReviewThreshold:      0.60,
		AutoProcessThreshold: 0.80,
		CategoryLabels: map[string]string{
			"INVOICE":        "Rechnung",
			"BANK_STATEMENT": "Kontoauszug",
			"CONTRACT":       "Vertrag",
			"LETTER":         "Brief",
			"RECEIPT":        "Quittung",
		},
	}
}

// Route applies the ordered threshold policy; the first match wins.
func (c ClassificationConfig) Route(confidence float64) domain.DocumentStatus {
	switch {
	case confidence < c.ReviewThreshold:
		return domain.StatusNeedsReview
	case confidence >= c.AutoProcessThreshold:
		return domain.StatusProcessed
	default:
		return domain.StatusInbox
	}
}

type ClassificationUseCase struct {
	registry   *Registry
	locks      *DocumentLocks
	mapper     *FolderMapper
	classifier ports.Classifier
	events     ports.EventPublisher
	metrics    ports.LifecycleMetrics
	cfg        ClassificationConfig
	newToken   func() string
}

func NewClassificationUseCase(
	registry *Registry,
	locks *DocumentLocks,
	mapper *FolderMapper,
	classifier ports.Classifier,
	events ports.EventPublisher,
	metrics ports.LifecycleMetrics,
	cfg ClassificationConfig,
) *ClassificationUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ClassificationUseCase{
		registry:   registry,
		locks:      locks,
		mapper:     mapper,
		classifier: classifier,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		newToken:   uuid.NewString,
	}
}

func (uc *ClassificationUseCase) Classify(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	return uc.classifyAndRoute(ctx, documentID, actor)
}

// Reclassify is the same operation as Classify; only the caller's intent differs.
func (uc *ClassificationUseCase) Reclassify(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	return uc.classifyAndRoute(ctx, documentID, actor)
}

func (uc *ClassificationUseCase) classifyAndRoute(ctx context.Context, documentID, actor string) (*domain.Transition, error) {
	if strings.TrimSpace(actor) == "" {
		actor = domain.SystemActor
	}

	unlock, err := uc.locks.acquireDocument(documentID, "classify document")
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	classification, err := uc.classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	target := uc.cfg.Route(classification.Confidence)
	updated, err := uc.apply(ctx, doc, classification, target, actor)
	if err != nil {
		uc.metrics.ObserveClassification("storage_error", 0)
		return nil, err
	}

	publishEvent(ctx, uc.events, domain.LifecycleEvent{
		DocumentID: updated.ID,
		Filename:   updated.Filename,
		Type:       domain.EventClassified,
		From:       doc.Status,
		To:         updated.Status,
		Actor:      actor,
		Confidence: updated.Confidence,
		At:         updated.UpdatedAt,
	})

	return &domain.Transition{
		Document: updated,
		From:     doc.Status,
		To:       updated.Status,
		Changed:  true,
	}, nil
}

func (uc *ClassificationUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.registry.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusDeleted {
		return nil, domain.WrapError(domain.ErrConflict, "classify document", fmt.Errorf("document %s is deleted", doc.ID))
	}
	return doc, nil
}

func (uc *ClassificationUseCase) classify(ctx context.Context, doc *domain.Document) (domain.Classification, error) {
	start := time.Now()
	resp, err := uc.classifier.Classify(ctx, domain.ClassificationRequest{
		Token:      uc.newToken(),
		DocumentID: doc.ID,
		Filename:   doc.Filename,
	})
	if err != nil {
		uc.metrics.ObserveClassification("unavailable", time.Since(start))
		if !domain.IsKind(err, domain.ErrDependencyUnavailable) {
			err = domain.WrapError(domain.ErrDependencyUnavailable, "classify document", err)
		}
		return domain.Classification{}, err
	}

	classification := NormalizeClassification(resp, uc.cfg.CategoryLabels)
	uc.metrics.ObserveClassification(string(uc.cfg.Route(classification.Confidence)), time.Since(start))
	return classification, nil
}

func (uc *ClassificationUseCase) apply(
	ctx context.Context,
	doc *domain.Document,
	classification domain.Classification,
	target domain.DocumentStatus,
	actor string,
) (*domain.Document, error) {
	mode := domain.ModeAuto
	if doc.Mode == domain.ModeManual {
		mode = domain.ModeManual
	}
	confidence := classification.Confidence
	patch := domain.DocumentPatch{
		Metadata:   classification.Metadata,
		Confidence: &confidence,
		Mode:       &mode,
		User:       actor,
	}

	if target == domain.StatusProcessed {
		return uc.mapper.Process(ctx, doc, patch)
	}
	return uc.mapper.MoveTo(ctx, doc, target, patch)
}

// NormalizeClassification flattens either response layout into metadata and
// one overall confidence: the mean of the per-field scores rounded to two
// decimals, else the top-level confidence, else 0.5.
func NormalizeClassification(resp domain.ClassifierResponse, labels map[string]string) domain.Classification {
	fields := []struct {
		key   string
		field domain.ClassifierField
	}{
		{domain.MetaCategory, resp.Category},
		{domain.MetaDocID, resp.DocID},
		{domain.MetaSubject, resp.Subject},
		{domain.MetaDocDate, resp.DocDate},
	}

	metadata := domain.Metadata{}
	scores := map[string]float64{}
	var sum float64
	for _, f := range fields {
		if f.field.Value != nil {
			value := strings.TrimSpace(*f.field.Value)
			if value != "" {
				if f.key == domain.MetaCategory {
					value = categoryLabel(value, labels)
				}
				metadata[f.key] = value
			}
		}
		if f.field.Score != nil && !math.IsNaN(*f.field.Score) {
			score := clampUnit(*f.field.Score)
			scores[f.key] = score
			sum += score
		}
	}

	confidence := defaultConfidence
	switch {
	case len(scores) > 0:
		confidence = roundTo2(sum / float64(len(scores)))
	case resp.Confidence != nil && !math.IsNaN(*resp.Confidence):
		confidence = clampUnit(*resp.Confidence)
	}

	return domain.Classification{
		Metadata:    metadata,
		Confidence:  confidence,
		FieldScores: scores,
	}
}

func categoryLabel(kind string, labels map[string]string) string {
	if label, ok := labels[kind]; ok {
		return label
	}
	if label, ok := labels[strings.ToUpper(kind)]; ok {
		return label
	}
	return kind
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
