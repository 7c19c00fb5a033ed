package jsonfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

// Lock is an exclusive advisory lock on a file next to the snapshot. Only
// the process holding it may write the snapshot or touch the managed folders.
type Lock struct {
	file *os.File
}

// LockPath is where the owner lock for snapshotPath lives.
func LockPath(snapshotPath string) string {
	return snapshotPath + ".lock"
}

// AcquireLock takes the lock without waiting. A lock held by another process
// fails with ErrConflict. The kernel drops the lock when the holder exits, so
// a crashed process never leaves a stale lock behind.
func AcquireLock(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "open snapshot lock", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, domain.WrapError(domain.ErrConflict, "acquire snapshot lock",
				fmt.Errorf("%s is held by another process", path))
		}
		return nil, domain.WrapError(domain.ErrStorage, "acquire snapshot lock", err)
	}

	// The pid is informational only.
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{file: file}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}
