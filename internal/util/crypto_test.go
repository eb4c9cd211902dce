package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPin(t *testing.T) {
	t.Run("produces a bcrypt hash", func(t *testing.T) {
		hash, err := HashPin("4821")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
	})

	t.Run("same pin produces different hashes", func(t *testing.T) {
		hash1, err := HashPin("4821")
		require.NoError(t, err)
		hash2, err := HashPin("4821")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestCheckPin(t *testing.T) {
	hash, err := HashPin("4821")
	require.NoError(t, err)

	t.Run("accepts the correct pin", func(t *testing.T) {
		assert.True(t, CheckPin(hash, "4821"))
	})

	t.Run("rejects a wrong pin", func(t *testing.T) {
		assert.False(t, CheckPin(hash, "0000"))
	})

	t.Run("rejects a malformed hash", func(t *testing.T) {
		assert.False(t, CheckPin("not-a-hash", "4821"))
	})
}
