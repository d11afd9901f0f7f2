package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate("test")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	id, err := Generate("custom")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "custom-"))
	// Default NanoID length is 21.
	assert.Len(t, strings.TrimPrefix(id, "custom-"), 21)
}

func TestNewSessionID(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, SessionPrefix+"-"))
	// Session IDs are joined into store keys with ':'.
	assert.NotContains(t, id, ":")
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
