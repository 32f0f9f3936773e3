package planstore_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/planstore"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := planstore.New(t.TempDir())
	hash, err := s.Put([]byte(validPlan))
	require.NoError(t, err)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, validPlan, got)
}

func TestStore_PutIsIdempotent(t *testing.T) {
	s := planstore.New(t.TempDir())
	h1, err := s.Put([]byte(validPlan))
	require.NoError(t, err)
	h2, err := s.Put([]byte(validPlan))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestStore_GetUnknownHashReturnsNotFound(t *testing.T) {
	s := planstore.New(t.TempDir())
	_, err := s.Get("0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	var ge *gateerr.GateError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateerr.CodePlanNotFound, ge.ErrorCode)
}

// TestStore_HashIsContentAddress is the filename-is-content-hash property:
// for any content Put stores, the returned hash is exactly SHA-256(content).
func TestStore_HashIsContentAddress(t *testing.T) {
	s := planstore.New(t.TempDir())

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("Put's returned hash equals HashBytes(content)", prop.ForAll(
		func(content string) bool {
			hash, err := s.Put([]byte(content))
			if err != nil {
				return false
			}
			return hash == canon.HashBytes([]byte(content))
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestStore_ListEnumeratesLintedPlans(t *testing.T) {
	s := planstore.New(t.TempDir())
	hash, err := s.Put([]byte(validPlan))
	require.NoError(t, err)

	listed, err := s.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, hash, listed[0].Hash)
	assert.True(t, listed[0].Lint.Passed)
	assert.Equal(t, "APPROVED", listed[0].Status)
}

func TestStore_ListOnMissingDirReturnsEmpty(t *testing.T) {
	s := planstore.New(t.TempDir() + "/does-not-exist")
	listed, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}
