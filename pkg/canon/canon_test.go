package canon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/gatekeeper/pkg/canon"
)

func TestHashBytes_Deterministic(t *testing.T) {
	content := []byte("hello\n")
	a := canon.HashBytes(content)
	b := canon.HashBytes(content)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashBytes_DistinctContentDistinctHash(t *testing.T) {
	a := canon.HashBytes([]byte("hello\n"))
	b := canon.HashBytes([]byte("hello \n"))
	assert.NotEqual(t, a, b)
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	type unordered map[string]any
	h1, err := canon.Hash(unordered{"b": 2, "a": 1})
	require.NoError(t, err)
	h2, err := canon.Hash(unordered{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHash_Deterministic(t *testing.T) {
	v := struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}{Name: "plan", N: 3}
	h1, err := canon.Hash(v)
	require.NoError(t, err)
	h2, err := canon.Hash(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
