package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrStorage               = errors.New("storage failure")
	ErrConflict              = errors.New("conflict")
)

// Storage failures raised by the folder layer. Both are ErrStorage kinds.
var (
	ErrFileNotFound = fmt.Errorf("source file not found: %w", ErrStorage)
	ErrMoveFailed   = fmt.Errorf("move failed: %w", ErrStorage)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName returns a stable machine-readable name for the error kind.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrDocumentNotFound):
		return "not_found"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrConflict):
		return "conflict"
	case IsKind(err, ErrDependencyUnavailable):
		return "dependency_unavailable"
	case IsKind(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
