package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusInbox       DocumentStatus = "inbox"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusProcessing  DocumentStatus = "processing"
	StatusHold        DocumentStatus = "hold"
	StatusProcessed   DocumentStatus = "processed"
	StatusDeleted     DocumentStatus = "deleted"
)

var allStatuses = []DocumentStatus{
	StatusInbox,
	StatusNeedsReview,
	StatusProcessing,
	StatusHold,
	StatusProcessed,
	StatusDeleted,
}

func AllStatuses() []DocumentStatus {
	out := make([]DocumentStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s DocumentStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts the canonical names plus the legacy "on_hold" and
// "needs-review" spellings.
func ParseStatus(raw string) (DocumentStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "on_hold":
		return StatusHold, nil
	case "needs-review":
		return StatusNeedsReview, nil
	}
	status := DocumentStatus(value)
	if !status.Valid() {
		return "", WrapError(ErrInvalidInput, "parse status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

type Origin string

const (
	OriginScanner Origin = "scanner"
	OriginManual  Origin = "manual"
)

type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeCorrected Mode = "corrected"
	ModeManual    Mode = "manual"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeCorrected, ModeManual:
		return true
	default:
		return false
	}
}

// Well-known metadata keys. Any other key is kept as free-form metadata.
const (
	MetaCategory = "category"
	MetaDocID    = "docId"
	MetaSubject  = "subject"
	MetaDocDate  = "docDate"
)

// SystemActor is recorded as the user of changes made by background jobs.
const SystemActor = "system"

type Metadata map[string]string

// Merge returns a new map: every key of update overwrites, including with an
// empty value, and every other key of m is preserved.
func (m Metadata) Merge(update Metadata) Metadata {
	out := make(Metadata, len(m)+len(update))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	Origin     Origin         `json:"origin"`
	Confidence *float64       `json:"confidence"`
	Metadata   Metadata       `json:"metadata"`
	Mode       Mode           `json:"mode"`
	User       string         `json:"user,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy; callers outside the registry only ever see clones.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Metadata = d.Metadata.Clone()
	if d.Confidence != nil {
		c := *d.Confidence
		out.Confidence = &c
	}
	return &out
}

// DocumentPatch is a partial update. Nil fields are left untouched and
// Metadata is shallow-merged.
type DocumentPatch struct {
	Status     *DocumentStatus
	Metadata   Metadata
	Confidence *float64
	Mode       *Mode
	User       string
}

// Transition is the result of every mutating action. Changed is false when
// the document already was in the requested state.
type Transition struct {
	Document *Document     `json:"document"`
	From     DocumentStatus `json:"from"`
	To       DocumentStatus `json:"to"`
	Changed  bool           `json:"changed"`
}

type ListOrder int

const (
	NewestFirst ListOrder = iota
	OldestFirst
)

type DocumentFilter struct {
	Statuses []DocumentStatus
	Order    ListOrder
}

func (f DocumentFilter) Matches(doc *Document) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if doc.Status == s {
			return true
		}
	}
	return false
}

// ProcessingRecord is the side-record written next to a processed document.
type ProcessingRecord struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	Status      DocumentStatus `json:"status"`
	Metadata    Metadata       `json:"metadata"`
	Confidence  *float64       `json:"confidence"`
	User        string         `json:"user"`
	ProcessedAt time.Time      `json:"processedAt"`
}
