package usecase

import (
	"fmt"
	"sync"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// DocumentLocks serializes transitions per key. Acquisition never blocks: a
// busy key means another transition is in flight.
type DocumentLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{held: make(map[string]struct{})}
}

func (l *DocumentLocks) TryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}

func (l *DocumentLocks) acquireDocument(documentID, operation string) (func(), error) {
	unlock, ok := l.TryLock(documentKey(documentID))
	if !ok {
		return nil, domain.WrapError(
			domain.ErrConflict,
			operation,
			fmt.Errorf("document %s is already in transition", documentID),
		)
	}
	return unlock, nil
}

func documentKey(id string) string {
	return "doc:" + id
}

func filenameKey(name string) string {
	return "file:" + name
}
