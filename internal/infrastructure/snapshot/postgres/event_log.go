package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

const DefaultEventLimit = 200

// EventLog stores lifecycle events in document_events. It satisfies both the
// event publisher and the event reader ports.
type EventLog struct {
	db    *sql.DB
	limit int
}

func NewEventLog(db *sql.DB, limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &EventLog{db: db, limit: limit}
}

func (r *EventLog) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_events (id, document_id, filename, event_type, from_status, to_status, actor, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, uuid.NewString(), event.DocumentID, event.Filename, string(event.Type),
		nullableString(string(event.From)), nullableString(string(event.To)), nullableString(event.Actor),
		nullableFloat(event.Confidence), event.At)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "append event", err)
	}
	return nil
}

// Events returns the most recent events of a document in chronological order.
func (r *EventLog) Events(ctx context.Context, documentID string) ([]domain.LifecycleEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, filename, event_type, COALESCE(from_status, ''), COALESCE(to_status, ''), COALESCE(actor, ''), confidence, created_at
FROM document_events
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2
`, documentID, r.limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "list events", err)
	}
	defer rows.Close()

	out := make([]domain.LifecycleEvent, 0)
	for rows.Next() {
		var (
			event      domain.LifecycleEvent
			eventType  string
			from, to   string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(
			&event.DocumentID,
			&event.Filename,
			&eventType,
			&from,
			&to,
			&event.Actor,
			&confidence,
			&event.At,
		); err != nil {
			return nil, domain.WrapError(domain.ErrStorage, "scan event", err)
		}
		event.Type = domain.EventType(eventType)
		event.From = domain.DocumentStatus(from)
		event.To = domain.DocumentStatus(to)
		if confidence.Valid {
			c := confidence.Float64
			event.Confidence = &c
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "iterate events", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
