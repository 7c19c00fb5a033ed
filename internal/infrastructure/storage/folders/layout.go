package folders

import (
	"fmt"
	"path/filepath"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// Layout names the directory behind every status. Processing and processed
// share the outbox directory.
type Layout struct {
	Inbox      string
	Review     string
	Processing string
	Hold       string
	Deleted    string
}

func DefaultLayout(root string) Layout {
	if root == "" {
		root = "./data"
	}
	return Layout{
		Inbox:      filepath.Join(root, "inbox"),
		Review:     filepath.Join(root, "needs-review"),
		Processing: filepath.Join(root, "processing"),
		Hold:       filepath.Join(root, "hold"),
		Deleted:    filepath.Join(root, "deleted"),
	}
}

func (l Layout) Dir(status domain.DocumentStatus) (string, error) {
	switch status {
	case domain.StatusInbox:
		return l.Inbox, nil
	case domain.StatusNeedsReview:
		return l.Review, nil
	case domain.StatusProcessing, domain.StatusProcessed:
		return l.Processing, nil
	case domain.StatusHold:
		return l.Hold, nil
	case domain.StatusDeleted:
		return l.Deleted, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve folder", fmt.Errorf("unknown status %q", status))
	}
}

func (l Layout) dirs() []string {
	return []string{l.Inbox, l.Review, l.Processing, l.Hold, l.Deleted}
}
