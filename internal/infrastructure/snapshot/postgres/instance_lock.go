package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

const ownerLockKey int64 = 2026021003

// InstanceLock is a session-level advisory lock held on a dedicated
// connection for the lifetime of the process that owns the registry.
type InstanceLock struct {
	conn *sql.Conn
}

// AcquireInstanceLock fails fast with ErrConflict when another process
// already owns the registry.
func AcquireInstanceLock(ctx context.Context, db *sql.DB) (*InstanceLock, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "reserve lock connection", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, ownerLockKey).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, domain.WrapError(domain.ErrStorage, "acquire instance lock", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, domain.WrapError(domain.ErrConflict, "acquire instance lock",
			errors.New("registry is owned by another process"))
	}
	return &InstanceLock{conn: conn}, nil
}

func (l *InstanceLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	_, unlockErr := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, ownerLockKey)
	closeErr := l.conn.Close()
	l.conn = nil
	if unlockErr != nil {
		unlockErr = fmt.Errorf("release instance lock: %w", unlockErr)
	}
	return errors.Join(unlockErr, closeErr)
}
