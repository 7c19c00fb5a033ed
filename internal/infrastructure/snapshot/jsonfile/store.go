package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/infrastructure/snapshot"
)

// Store keeps the registry snapshot in a single JSON file. Writes go to a
// temporary file that is renamed over the previous snapshot.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(_ context.Context) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrStorage, "read snapshot", err)
	}
	docs, err := snapshot.Decode(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "load snapshot", err)
	}
	return docs, nil
}

func (s *Store) Save(_ context.Context, docs []domain.Document) error {
	payload, err := snapshot.Encode(docs)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "save snapshot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "create snapshot temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return domain.WrapError(domain.ErrStorage, "write snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return domain.WrapError(domain.ErrStorage, "sync snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.WrapError(domain.ErrStorage, "close snapshot", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return domain.WrapError(domain.ErrStorage, "replace snapshot", err)
	}
	return nil
}
