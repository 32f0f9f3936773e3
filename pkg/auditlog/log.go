// Package auditlog implements the single-writer, hash-chained,
// append-only audit log: one JSON object per line, each entry carrying
// the hash of its predecessor, appended under an advisory lock shared
// by every state-mutating path in the gateway.
package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

const (
	// InvAuditChain is raised when chain linkage or seq monotonicity breaks.
	InvAuditChain = "INV_AUDIT_CHAIN"
	// StaleLockReclaimedNote is the notes value for the synthetic entry
	// a writer appends after forcibly reclaiming a stale lock directory.
	StaleLockReclaimedNote = "stale_audit_lock_reclaimed"
)

// Log is the hash-chained JSONL audit log for one workspace.
type Log struct {
	path       string
	locker     Locker
	staleAfter time.Duration
	clock      func() time.Time
}

// New returns a Log writing to path, serialized by locker, with
// staleAfter as the stale-lock-reclaim age threshold (default 10s).
func New(path string, locker Locker, staleAfter time.Duration) *Log {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	return &Log{path: path, locker: locker, staleAfter: staleAfter, clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Draft is the caller-supplied content of an entry, prior to seq/prev_hash/
// entry_hash assignment, which Append computes under the lock.
type Draft struct {
	SessionID   string
	OperatorID  string
	Role        string
	Tool        string
	PlanHash    *string
	PhaseID     *string
	ArgsHash    string
	Result      Result
	ErrorCode   *string
	InvariantID *string
	Notes       string
}

// WithLock acquires the audit-append lock, hands fn an append function
// that writes entries under the held lock, and releases on return. This
// is the critical-section primitive for every state mutation in the
// gateway: file writes, reverts, governance and kill-switch updates all
// happen inside fn so that the mutation and its log entry cannot be
// separated by a concurrent writer. If the lock was stale and forcibly
// reclaimed, a synthetic system entry is appended before fn runs, so the
// chain itself records the reclaim event.
func (l *Log) WithLock(ctx context.Context, fn func(appendEntry func(Draft) (*Entry, error)) error) error {
	release, reclaimed, err := l.locker.Acquire(ctx, l.staleAfter)
	if err != nil {
		return fmt.Errorf("auditlog: %w", err)
	}
	defer release()

	if reclaimed {
		if _, err := l.appendLocked(Draft{
			Tool:   "system",
			Role:   "system",
			Result: ResultOK,
			Notes:  StaleLockReclaimedNote,
		}); err != nil {
			return err
		}
	}

	return fn(l.appendLocked)
}

// Append acquires the audit-append lock, reads the current tail to
// determine the next seq and prev_hash, writes the new entry with fsync,
// and releases the lock.
func (l *Log) Append(ctx context.Context, d Draft) (*Entry, error) {
	var entry *Entry
	err := l.WithLock(ctx, func(appendEntry func(Draft) (*Entry, error)) error {
		e, appendErr := appendEntry(d)
		if appendErr != nil {
			return appendErr
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// appendLocked must be called with the audit-append lock held.
func (l *Log) appendLocked(d Draft) (*Entry, error) {
	prevSeq, prevHash, err := l.tail()
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Seq:         prevSeq + 1,
		TS:          l.clock().UTC(),
		SessionID:   d.SessionID,
		OperatorID:  d.OperatorID,
		Role:        d.Role,
		Tool:        d.Tool,
		PlanHash:    d.PlanHash,
		PhaseID:     d.PhaseID,
		ArgsHash:    d.ArgsHash,
		Result:      d.Result,
		ErrorCode:   d.ErrorCode,
		InvariantID: d.InvariantID,
		Notes:       d.Notes,
		PrevHash:    prevHash,
	}

	hashBytes, err := canon.Marshal(e.hashable())
	if err != nil {
		return nil, fmt.Errorf("auditlog: canonicalize entry: %w", err)
	}
	e.EntryHash = canon.HashBytes(hashBytes)

	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("auditlog: marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return nil, fmt.Errorf("auditlog: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("auditlog: fsync: %w", err)
	}

	return e, nil
}

// tail returns the last entry's seq and entry_hash, or (0, Genesis, nil)
// for an empty or nonexistent log.
func (l *Log) tail() (int64, string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, Genesis, nil
		}
		return 0, "", fmt.Errorf("auditlog: open for tail: %w", err)
	}
	defer f.Close()

	var last Entry
	found := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return 0, "", &gateerr.InvariantViolation{InvariantID: InvAuditChain, Detail: "tail entry is not valid JSON"}
		}
		last = e
		found = true
	}
	if err := sc.Err(); err != nil {
		return 0, "", fmt.Errorf("auditlog: scan: %w", err)
	}
	if !found {
		return 0, Genesis, nil
	}
	return last.Seq, last.EntryHash, nil
}

// ReadAll reads the log line by line, JSON-parsing each line, and then
// runs VerifyChain over all entries read. A malformed line or a chain
// failure is non-recoverable and is returned as an
// *gateerr.InvariantViolation with InvAuditChain; callers are expected to
// engage the kill-switch on receipt. A file open or scan error is
// returned as a plain error.
func (l *Log) ReadAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auditlog: open: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, &gateerr.InvariantViolation{
				InvariantID: InvAuditChain,
				Detail:      fmt.Sprintf("line %d is not valid JSON: %v", lineNo, err),
			}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("auditlog: scan: %w", err)
	}

	if err := VerifyChain(entries); err != nil {
		return entries, err
	}
	return entries, nil
}

// VerifyChain checks strict seq monotonicity starting at 1, prev_hash
// linkage across adjacent entries, and that each entry's recorded
// entry_hash matches a recomputation over its content (INV_AUDIT_CHAIN).
// The recomputation matters: an in-place edit that leaves the recorded
// entry_hash field untouched would otherwise keep linkage intact.
func VerifyChain(entries []Entry) error {
	for i, e := range entries {
		expectedSeq := int64(i + 1)
		if e.Seq != expectedSeq {
			return &gateerr.InvariantViolation{
				InvariantID: InvAuditChain,
				Detail:      fmt.Sprintf("entry at index %d has seq %d, expected %d", i, e.Seq, expectedSeq),
			}
		}
		expectedPrev := Genesis
		if i > 0 {
			expectedPrev = entries[i-1].EntryHash
		}
		if e.PrevHash != expectedPrev {
			return &gateerr.InvariantViolation{
				InvariantID: InvAuditChain,
				Detail:      fmt.Sprintf("entry seq %d has prev_hash %q, expected %q", e.Seq, e.PrevHash, expectedPrev),
			}
		}
		hashBytes, err := canon.Marshal(e.hashable())
		if err != nil {
			return fmt.Errorf("auditlog: canonicalize entry seq %d: %w", e.Seq, err)
		}
		if canon.HashBytes(hashBytes) != e.EntryHash {
			return &gateerr.InvariantViolation{
				InvariantID: InvAuditChain,
				Detail:      fmt.Sprintf("entry seq %d content does not match its recorded entry_hash", e.Seq),
			}
		}
	}
	return nil
}
