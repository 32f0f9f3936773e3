// Package workspace implements the path & workspace resolver: the sole
// source of truth for the canonical workspace root and every logical
// path derived from it. Earlier designs derived these paths implicitly
// from the process's current working directory, which
// produced divergence between monorepo subtrees — audit logs landing in
// the wrong directory, plan lookups failing silently. This package makes
// the root an explicit, lock-once singleton instead.
package workspace

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

// InvRootLockedOnce is the invariant identifier for a relock attempt with
// a different resolved root.
const InvRootLockedOnce = "INV_ROOT_LOCKED_ONCE"

// Resolver holds the locked workspace root and resolves paths against it.
// Its zero value is unlocked; Lock must be called exactly once before any
// other method is used.
type Resolver struct {
	mu      sync.Mutex
	root    string
	locked  bool
	ns      string
}

// New returns an unlocked resolver for the given namespace (used to name
// the `.<namespace>/` directory and its children).
func New(namespace string) *Resolver {
	return &Resolver{ns: namespace}
}

// Lock resolves candidate to an absolute, symlink-resolved path and
// stores it as the workspace root. A second call with a different
// resolved value returns an *gateerr.InvariantViolation with
// InvRootLockedOnce; a second call with the same resolved value is a
// no-op success, since some callers (e.g. idempotent session retries)
// legitimately re-issue begin_session.
func (r *Resolver) Lock(candidate string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", gateerr.New(gateerr.CodeInvalidInputValue, "workspace root is not a valid path", gateerr.WithCause(err))
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", gateerr.New(gateerr.CodeInvalidInputValue, "workspace root does not exist or cannot be resolved", gateerr.WithCause(err))
	}

	if r.locked {
		if resolved != r.root {
			return "", &gateerr.InvariantViolation{
				InvariantID: InvRootLockedOnce,
				Detail:      "workspace root already locked to a different path",
			}
		}
		return r.root, nil
	}

	r.root = resolved
	r.locked = true
	return r.root, nil
}

// IsLocked reports whether the workspace root has been set.
func (r *Resolver) IsLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// Root returns the locked workspace root, or "" if unlocked.
func (r *Resolver) Root() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

// ResolveRead proves that target (root-relative or absolute) resolves to
// a path contained within the locked root, and returns that absolute
// path. Unlike ResolveWrite it does not require the target to exist as
// of this call, but if it does exist symlinks are still resolved.
func (r *Resolver) ResolveRead(target string) (string, error) {
	return r.resolveContained(target)
}

// ResolveWrite proves containment identically to ResolveRead. The
// distinction exists at the call site (write gate stage 6 vs. read_file)
// even though the containment proof itself is identical.
func (r *Resolver) ResolveWrite(target string) (string, error) {
	return r.resolveContained(target)
}

func (r *Resolver) resolveContained(target string) (string, error) {
	r.mu.Lock()
	root, locked := r.root, r.locked
	r.mu.Unlock()

	if !locked {
		return "", &gateerr.InvariantViolation{InvariantID: InvRootLockedOnce, Detail: "workspace root not locked"}
	}

	if hasDotDotSegment(target) {
		return "", gateerr.New(gateerr.CodePathTraversal, "path contains a '..' segment")
	}

	joined := target
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(root, joined)
	}
	normalized := filepath.Clean(joined)

	// Resolve symlinks on the longest existing prefix of the target, so a
	// not-yet-created write target under a symlinked directory is checked
	// for containment at the place the directory really points to.
	existing, rest := normalized, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			normalized = filepath.Join(resolved, rest)
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	if normalized != root && !strings.HasPrefix(normalized, root+string(filepath.Separator)) {
		return "", gateerr.New(gateerr.CodePathOutOfWorkspace, "path escapes the workspace root")
	}

	return normalized, nil
}

func hasDotDotSegment(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Logical path accessors. These are the sole source of truth for where
// the plan store, audit log, governance file, kill-switch file, and
// bootstrap lock live; no other package constructs these paths.

func (r *Resolver) PlansDir() string {
	return filepath.Join(r.Root(), "docs", "plans")
}

func (r *Resolver) AuditLogPath() string {
	return filepath.Join(r.Root(), "audit-log.jsonl")
}

func (r *Resolver) NamespaceDir() string {
	return filepath.Join(r.Root(), "."+r.ns)
}

func (r *Resolver) GovernanceFilePath() string {
	return filepath.Join(r.NamespaceDir(), "governance.json")
}

func (r *Resolver) KillSwitchFilePath() string {
	return filepath.Join(r.NamespaceDir(), "kill-switch.json")
}

func (r *Resolver) RecoveryPendingFilePath() string {
	return filepath.Join(r.NamespaceDir(), "recovery-pending.json")
}

func (r *Resolver) BootstrapSecretFilePath() string {
	return filepath.Join(r.NamespaceDir(), "bootstrap_secret.json")
}

func (r *Resolver) AuditLockDirPath() string {
	return filepath.Join(r.NamespaceDir(), "audit.lock")
}

func (r *Resolver) AuditIndexPath() string {
	return filepath.Join(r.NamespaceDir(), "audit-index.sqlite")
}

func (r *Resolver) SessionsDir() string {
	return filepath.Join(r.NamespaceDir(), "sessions")
}

func (r *Resolver) SessionLockPath(sessionID string) string {
	return filepath.Join(r.SessionsDir(), sessionID+".lock")
}

// ResetForTest clears the locked root. It exists solely for test
// harnesses that need a fresh resolver across table-driven cases sharing
// one *Resolver value; it must never be reachable from a production
// entry point (no dispatch tool calls it).
func (r *Resolver) ResetForTest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = ""
	r.locked = false
}
