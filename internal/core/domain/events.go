package domain

import "time"

type EventType string

const (
	EventCreated      EventType = "created"
	EventClassified   EventType = "classified"
	EventTransitioned EventType = "transitioned"
	EventUpdated      EventType = "updated"
	EventRemoved      EventType = "removed"
	EventPurged       EventType = "purged"
)

// LifecycleEvent is the audit trail entry of a document.
type LifecycleEvent struct {
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Type       EventType      `json:"type"`
	From       DocumentStatus `json:"from,omitempty"`
	To         DocumentStatus `json:"to,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	At         time.Time      `json:"at"`
}

// DiscoveryReport summarizes one inbox discovery pass.
type DiscoveryReport struct {
	Created []string `json:"created"`
	Removed []string `json:"removed"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
}

// PurgeReport summarizes one purge pass.
type PurgeReport struct {
	Purged  []string `json:"purged"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
}
