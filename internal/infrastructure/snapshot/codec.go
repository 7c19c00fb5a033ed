// Package snapshot holds the on-disk format shared by the snapshot backends:
// one JSON object mapping document id to document record.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func Encode(docs []domain.Document) ([]byte, error) {
	byID := make(map[string]domain.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	payload, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

// Decode accepts an empty payload as an empty registry. Entries without an id
// take the id of their key.
func Decode(payload []byte) ([]domain.Document, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var byID map[string]domain.Document
	if err := json.Unmarshal(payload, &byID); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	out := make([]domain.Document, 0, len(byID))
	for id, doc := range byID {
		if doc.ID == "" {
			doc.ID = id
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
