package attestation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
)

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	store, err := attestation.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "hash1", []byte("token-bytes")))

	got, err := store.Get(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, "token-bytes", string(got))
}

func TestExportAndVerifyStored_RoundTrip(t *testing.T) {
	store, err := attestation.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	secret := []byte("bundle-secret")

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b, err := attestation.GenerateBundle(sampleEntries(), "planA", "sess-1", now)
	require.NoError(t, err)

	token, err := attestation.ExportBundle(ctx, store, b, secret)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := attestation.VerifyStored(ctx, store, b.BundleHash, secret)
	require.NoError(t, err)
	assert.Equal(t, b.PlanHash, got.PlanHash)
}

func TestVerifyStored_UnknownHashErrors(t *testing.T) {
	store, err := attestation.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = attestation.VerifyStored(context.Background(), store, "no-such-hash", []byte("secret"))
	require.Error(t, err)
}
