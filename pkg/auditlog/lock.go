package auditlog

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Locker is the single mutual-exclusion primitive shared by the audit
// log, governance state, and kill-switch state read-modify-write cycles.
// Every state mutation serializes on it.
type Locker interface {
	// Acquire blocks (with retry/backoff) until the lock is held, then
	// returns a release function. staleAfter is the age threshold past
	// which a held lock is considered abandoned and may be reclaimed.
	Acquire(ctx context.Context, staleAfter time.Duration) (release func(), reclaimedStale bool, err error)
}

// DirLocker is the default Locker: an mkdir-based lock directory. mkdir
// is atomic at the filesystem level (EEXIST on contention), making it a
// portable substitute for flock that also behaves predictably over
// network filesystems.
type DirLocker struct {
	path string
}

// NewDirLocker returns a Locker whose lock directory is path (typically
// Resolver.AuditLockDirPath()).
func NewDirLocker(path string) *DirLocker {
	return &DirLocker{path: path}
}

func (l *DirLocker) Acquire(ctx context.Context, staleAfter time.Duration) (func(), bool, error) {
	reclaimed := false
	backoff := 5 * time.Millisecond
	for {
		err := os.Mkdir(l.path, 0o700)
		if err == nil {
			return func() { _ = os.Remove(l.path) }, reclaimed, nil
		}
		if !os.IsExist(err) {
			return nil, false, fmt.Errorf("auditlog: acquire lock: %w", err)
		}

		if info, statErr := os.Stat(l.path); statErr == nil {
			if time.Since(info.ModTime()) > staleAfter {
				if rmErr := os.Remove(l.path); rmErr == nil {
					reclaimed = true
					continue
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}
