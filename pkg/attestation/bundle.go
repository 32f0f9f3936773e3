// Package attestation implements the attestation bundle: a signed,
// exportable evidence package proving a plan's phases were executed
// through the write gate, tying a plan hash to the exact audit-log
// entries it produced. The payload is a canonicalized evidence bundle
// and the signature mechanism is an HS256 JWT, making
// golang-jwt/jwt/v5's HMAC-SHA256-over-header-
// and-payload construction the literal implementation of "HMAC-SHA256
// over canonicalised evidence bundle."
package attestation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
)

// ErrSignerNotConfigured: an attestation cannot be generated with an
// empty secret.
var ErrSignerNotConfigured = errors.New("attestation: signer not configured (fail-closed)")

// EntryRef is the minimal per-entry fact an attestation bundle commits
// to: enough to locate and independently re-verify the entry without
// embedding the full audit record (which may carry operator PII).
type EntryRef struct {
	Seq       int64  `json:"seq"`
	EntryHash string `json:"entry_hash"`
	Tool      string `json:"tool"`
	Result    string `json:"result"`
}

// Bundle is the canonicalized evidence payload, prior to signing.
type Bundle struct {
	PlanHash    string     `json:"plan_hash"`
	SessionID   string     `json:"session_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Entries     []EntryRef `json:"entries"`
	BundleHash  string     `json:"bundle_hash"`
}

// GenerateBundle builds a Bundle from the audit entries belonging to one
// plan's execution. now is caller-supplied so bundle generation stays
// deterministic under test. The timestamp is truncated to whole seconds:
// the signed token carries it as a Unix integer, and the bundle hash must
// recompute identically from a token round-trip.
func GenerateBundle(entries []auditlog.Entry, planHash, sessionID string, now time.Time) (*Bundle, error) {
	b := &Bundle{
		PlanHash:    planHash,
		SessionID:   sessionID,
		GeneratedAt: now.UTC().Truncate(time.Second),
	}
	for _, e := range entries {
		if e.PlanHash == nil || *e.PlanHash != planHash {
			continue
		}
		b.Entries = append(b.Entries, EntryRef{Seq: e.Seq, EntryHash: e.EntryHash, Tool: e.Tool, Result: string(e.Result)})
	}
	if len(b.Entries) == 0 {
		return nil, fmt.Errorf("attestation: no audit entries found for plan %s", planHash)
	}

	hash, err := canon.Hash(struct {
		PlanHash    string     `json:"plan_hash"`
		SessionID   string     `json:"session_id"`
		GeneratedAt time.Time  `json:"generated_at"`
		Entries     []EntryRef `json:"entries"`
	}{b.PlanHash, b.SessionID, b.GeneratedAt, b.Entries})
	if err != nil {
		return nil, fmt.Errorf("attestation: hash bundle: %w", err)
	}
	b.BundleHash = hash
	return b, nil
}

// Sign produces an HS256 JWT whose claims carry the bundle, using secret
// as the HMAC key. The JWT's own HS256 signature over header+payload
// satisfies the "HMAC-SHA256 over canonicalised evidence bundle"
// requirement without a bespoke envelope format.
func Sign(b *Bundle, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrSignerNotConfigured
	}
	claims := jwt.MapClaims{
		"plan_hash":    b.PlanHash,
		"session_id":   b.SessionID,
		"generated_at": b.GeneratedAt.Unix(),
		"bundle_hash":  b.BundleHash,
		"entries":      b.Entries,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify parses and verifies a signed attestation token, returning the
// reconstructed Bundle. An invalid signature, expired/malformed token, or
// any claim shape mismatch is reported as ATTESTATION_EVIDENCE_INVALID by
// the caller (this package returns a plain error; the dispatch layer maps
// it to the gateerr code).
func Verify(token string, secret []byte) (*Bundle, error) {
	if len(secret) == 0 {
		return nil, ErrSignerNotConfigured
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("attestation: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attestation: verify: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("attestation: token claims invalid")
	}

	b := &Bundle{}
	if v, ok := claims["plan_hash"].(string); ok {
		b.PlanHash = v
	}
	if v, ok := claims["session_id"].(string); ok {
		b.SessionID = v
	}
	if v, ok := claims["bundle_hash"].(string); ok {
		b.BundleHash = v
	}
	if v, ok := claims["generated_at"].(float64); ok {
		b.GeneratedAt = time.Unix(int64(v), 0).UTC()
	}
	if raw, ok := claims["entries"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var ref EntryRef
			if s, ok := m["seq"].(float64); ok {
				ref.Seq = int64(s)
			}
			if s, ok := m["entry_hash"].(string); ok {
				ref.EntryHash = s
			}
			if s, ok := m["tool"].(string); ok {
				ref.Tool = s
			}
			if s, ok := m["result"].(string); ok {
				ref.Result = s
			}
			b.Entries = append(b.Entries, ref)
		}
	}
	return b, nil
}
