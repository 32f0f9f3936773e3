package attestation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
)

// Store persists signed attestation tokens, content-addressed by the
// bundle hash.
type Store interface {
	Put(ctx context.Context, bundleHash string, signedToken []byte) error
	Get(ctx context.Context, bundleHash string) ([]byte, error)
}

// FileStore is the default, always-available local backend.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore returns a FileStore rooted at baseDir, creating it if absent.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("attestation: ensure store dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(ctx context.Context, bundleHash string, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, bundleHash+".jwt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, token, 0o644); err != nil {
		return fmt.Errorf("attestation: write: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) Get(ctx context.Context, bundleHash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.ReadFile(filepath.Join(s.baseDir, bundleHash+".jwt"))
}

// ExportBundle generates, signs, and persists a bundle to store in one
// step, returning the signed token.
func ExportBundle(ctx context.Context, store Store, b *Bundle, secret []byte) (string, error) {
	token, err := Sign(b, secret)
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, b.BundleHash, []byte(token)); err != nil {
		return "", fmt.Errorf("attestation: store token: %w", err)
	}
	return token, nil
}

// VerifyStored fetches a previously exported token from store and
// verifies it, additionally confirming the bundle's own recomputed hash
// (not just the JWT signature) matches the hash claimed inside the token.
func VerifyStored(ctx context.Context, store Store, bundleHash string, secret []byte) (*Bundle, error) {
	raw, err := store.Get(ctx, bundleHash)
	if err != nil {
		return nil, fmt.Errorf("attestation: fetch token: %w", err)
	}
	b, err := Verify(string(raw), secret)
	if err != nil {
		return nil, err
	}
	recomputed, err := canon.Hash(struct {
		PlanHash    string     `json:"plan_hash"`
		SessionID   string     `json:"session_id"`
		GeneratedAt time.Time  `json:"generated_at"`
		Entries     []EntryRef `json:"entries"`
	}{b.PlanHash, b.SessionID, b.GeneratedAt, b.Entries})
	if err != nil {
		return nil, fmt.Errorf("attestation: recompute bundle hash: %w", err)
	}
	if recomputed != b.BundleHash || b.BundleHash != bundleHash {
		return nil, fmt.Errorf("attestation: bundle hash mismatch; evidence may have been tampered with")
	}
	return b, nil
}
