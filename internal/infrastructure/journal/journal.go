package journal

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
)

const DefaultPerDocument = 100

// Memory keeps the most recent lifecycle events of every document in memory.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]domain.LifecycleEvent
	limit  int
}

func NewMemory(perDocument int) *Memory {
	if perDocument <= 0 {
		perDocument = DefaultPerDocument
	}
	return &Memory{
		events: make(map[string][]domain.LifecycleEvent),
		limit:  perDocument,
	}
}

func (m *Memory) Publish(_ context.Context, event domain.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.events[event.DocumentID], event)
	if len(list) > m.limit {
		list = append([]domain.LifecycleEvent(nil), list[len(list)-m.limit:]...)
	}
	m.events[event.DocumentID] = list
	return nil
}

func (m *Memory) Events(_ context.Context, documentID string) ([]domain.LifecycleEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.events[documentID]
	out := make([]domain.LifecycleEvent, len(list))
	copy(out, list)
	return out, nil
}

// Fanout publishes every event to all targets. One failing target does not
// keep the others from receiving the event.
type Fanout []ports.EventPublisher

func (f Fanout) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	var errs []error
	for _, target := range f {
		if target == nil {
			continue
		}
		if err := target.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
