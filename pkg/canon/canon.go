// Package canon provides RFC 8785 JSON canonicalization and content hashing
// shared by the plan store, the audit log, and the attestation signer.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal encodes v as JSON and transforms it into RFC 8785 canonical form:
// sorted object keys, no insignificant whitespace, no HTML escaping.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: jcs transform: %w", err)
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical JSON form.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes, used where
// the hash input is already the exact bytes to hash rather than a value to
// canonicalize (plan content, raw tool arguments, canonicalized audit entries).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
