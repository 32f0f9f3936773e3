package planstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

// InvPlanImmutable is the invariant identifier for on-disk/filename hash divergence.
const InvPlanImmutable = "INV_PLAN_IMMUTABLE"

// Store reads, writes, and enumerates hash-addressed plans under one
// plans directory. The hash input is always the file content as stored
// on disk, byte for byte: no whitespace normalization, no line-ending
// rewrite.
type Store struct {
	dir string
}

// New returns a Store rooted at dir (typically Resolver.PlansDir()).
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Put writes content atomically to <dir>/<sha256(content)>.md. If the
// path already exists, its content must match byte-for-byte (idempotent
// retry) or Put fails — a mismatch indicates collision or a concurrent
// writer racing a different payload onto the same hash, which is
// impossible for SHA-256 short of an adversarial collision and is
// treated as a hard error either way.
func (s *Store) Put(content []byte) (string, error) {
	hash := canon.HashBytes(content)
	path := filepath.Join(s.dir, hash+".md")

	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) != string(content) {
			return "", fmt.Errorf("planstore: %s exists with different content", hash)
		}
		return hash, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("planstore: stat existing plan: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("planstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-plan-*")
	if err != nil {
		return "", fmt.Errorf("planstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("planstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("planstore: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("planstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("planstore: rename: %w", err)
	}
	return hash, nil
}

// Get reads the plan with the given hash, fatally raising
// INV_PLAN_IMMUTABLE if the on-disk content's recomputed hash does not
// match the filename stem.
func (s *Store) Get(hash string) (string, error) {
	path := filepath.Join(s.dir, hash+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", gateerr.New(gateerr.CodePlanNotFound, "plan not found: "+hash)
		}
		return "", fmt.Errorf("planstore: read: %w", err)
	}
	recomputed := canon.HashBytes(data)
	if recomputed != hash {
		return "", &gateerr.InvariantViolation{
			InvariantID: InvPlanImmutable,
			Detail:      fmt.Sprintf("plan %s content hash recomputes to %s", hash, recomputed),
		}
	}
	return string(data), nil
}

// ListedPlan is one entry returned by List.
type ListedPlan struct {
	Hash   string
	Lint   LintResult
	Status string
}

// List enumerates *.md in the plans directory, linting each. Plans with
// invalid structure are reported with their lint errors, never silently
// dropped.
func (s *Store) List() ([]ListedPlan, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("planstore: readdir: %w", err)
	}

	var out []ListedPlan
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".tmp-plan-") {
			continue
		}
		hash := strings.TrimSuffix(name, ".md")
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		lr := Lint(string(data), hash)
		p := parse(string(data))
		out = append(out, ListedPlan{Hash: hash, Lint: lr, Status: p.FrontMatter.Status})
	}
	return out, nil
}
