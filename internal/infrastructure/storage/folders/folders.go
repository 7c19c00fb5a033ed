package folders

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

const tempPrefix = ".tmp-"

type Storage struct {
	layout Layout
}

func New(layout Layout) (*Storage, error) {
	for _, dir := range layout.dirs() {
		if dir == "" {
			return nil, fmt.Errorf("folder layout has an empty directory: %+v", layout)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create folder %s: %w", dir, err)
		}
	}
	return &Storage{layout: layout}, nil
}

func (s *Storage) Layout() Layout {
	return s.layout
}

func (s *Storage) Exists(_ context.Context, status domain.DocumentStatus, filename string) (bool, error) {
	path, err := s.path(status, filename)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, domain.WrapError(domain.ErrStorage, "stat file", err)
	}
}

// Move relocates filename from the folder of one status to the folder of
// another. Renames that cross filesystems fall back to copy, verify, delete.
func (s *Storage) Move(_ context.Context, filename string, from, to domain.DocumentStatus) error {
	src, err := s.path(from, filename)
	if err != nil {
		return err
	}
	dst, err := s.path(to, filename)
	if err != nil {
		return err
	}

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s in %s: %w", filename, from, domain.ErrFileNotFound)
		}
		return domain.WrapError(domain.ErrStorage, "stat source", err)
	}
	if src == dst {
		return nil
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already present in %s: %w", filename, to, domain.ErrMoveFailed)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename %s: %v: %w", filename, err, domain.ErrMoveFailed)
	}

	slog.Debug("folder_move_cross_device", "filename", filename, "from", from, "to", to)
	if err := copyVerified(src, dst); err != nil {
		return fmt.Errorf("copy %s: %v: %w", filename, err, domain.ErrMoveFailed)
	}
	if err := os.Remove(src); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("remove source %s: %v: %w", filename, err, domain.ErrMoveFailed)
	}
	return nil
}

func (s *Storage) Remove(_ context.Context, status domain.DocumentStatus, filename string) error {
	path, err := s.path(status, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s in %s: %w", filename, status, domain.ErrFileNotFound)
		}
		return domain.WrapError(domain.ErrStorage, "remove file", err)
	}
	return nil
}

// List returns the regular files of a status folder, sorted by name. Hidden
// and temporary files are left out.
func (s *Storage) List(_ context.Context, status domain.DocumentStatus) ([]string, error) {
	dir, err := s.layout.Dir(status)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "read folder", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Save writes data under a temporary name and renames it into place, so
// watchers and discovery never see a partial file.
func (s *Storage) Save(_ context.Context, status domain.DocumentStatus, filename string, data io.Reader) error {
	path, err := s.path(status, filename)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return domain.WrapError(domain.ErrConflict, "save file", fmt.Errorf("%s already exists in %s", filename, status))
	}
	if err := writeAtomic(path, data); err != nil {
		return domain.WrapError(domain.ErrStorage, "save file", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, status domain.DocumentStatus, filename string) (io.ReadCloser, error) {
	path, err := s.path(status, filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s in %s: %w", filename, status, domain.ErrFileNotFound)
		}
		return nil, domain.WrapError(domain.ErrStorage, "open file", err)
	}
	return f, nil
}

// WriteProcessingRecord stores <id>.json next to the processed file.
func (s *Storage) WriteProcessingRecord(_ context.Context, record domain.ProcessingRecord) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "encode processing record", err)
	}
	if err := writeAtomic(s.recordPath(record.ID), bytes.NewReader(payload)); err != nil {
		return domain.WrapError(domain.ErrStorage, "write processing record", err)
	}
	return nil
}

func (s *Storage) RemoveProcessingRecord(_ context.Context, documentID string) error {
	if err := os.Remove(s.recordPath(documentID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.WrapError(domain.ErrStorage, "remove processing record", err)
	}
	return nil
}

// ReadProcessingRecord loads a side-record; used by tests and the sweep CLI.
func (s *Storage) ReadProcessingRecord(_ context.Context, documentID string) (domain.ProcessingRecord, error) {
	var record domain.ProcessingRecord
	raw, err := os.ReadFile(s.recordPath(documentID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record, fmt.Errorf("processing record %s: %w", documentID, domain.ErrFileNotFound)
		}
		return record, domain.WrapError(domain.ErrStorage, "read processing record", err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, domain.WrapError(domain.ErrStorage, "decode processing record", err)
	}
	return record, nil
}

func (s *Storage) recordPath(documentID string) string {
	return filepath.Join(s.layout.Processing, filepath.Base(documentID)+".json")
}

func (s *Storage) path(status domain.DocumentStatus, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve path", fmt.Errorf("invalid filename %q", filename))
	}
	dir, err := s.layout.Dir(status)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

func writeAtomic(path string, data io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// copyVerified copies src to dst and compares SHA-256 digests of both before
// reporting success. dst is removed on any failure.
func copyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcHash := sha256.New()
	if err := writeAtomic(dst, io.TeeReader(in, srcHash)); err != nil {
		return err
	}

	dstDigest, err := fileDigest(dst)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if !bytes.Equal(srcHash.Sum(nil), dstDigest) {
		_ = os.Remove(dst)
		return errors.New("checksum mismatch after copy")
	}
	return nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
