package commitment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitOpen(t *testing.T) {
	scheme := HashScheme{}

	t.Run("generated nonce is returned and opens the commitment", func(t *testing.T) {
		c, err := Commit("JP-13-113-01")
		require.NoError(t, err)
		require.Len(t, c.Nonce, NonceSize*2)
		assert.True(t, Open(c, "JP-13-113-01"))
		assert.False(t, Open(c, "JP-13-113-02"))
	})

	t.Run("same value and nonce commit identically", func(t *testing.T) {
		nonce := bytes.Repeat([]byte{7}, NonceSize)
		a, err := scheme.Commit("Tokyo", nonce)
		require.NoError(t, err)
		b, err := scheme.Commit("Tokyo", nonce)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("different nonces hide equal values", func(t *testing.T) {
		a, err := Commit("Tokyo")
		require.NoError(t, err)
		b, err := Commit("Tokyo")
		require.NoError(t, err)
		assert.NotEqual(t, a.ValueHash, b.ValueHash)
	})

	t.Run("opening without the nonce fails", func(t *testing.T) {
		c, err := Commit("Tokyo")
		require.NoError(t, err)
		assert.False(t, Open(c.Public(), "Tokyo"))
	})

	t.Run("length prefix prevents boundary shifting", func(t *testing.T) {
		nonce := bytes.Repeat([]byte{1}, NonceSize)
		a, err := scheme.Commit("ab", append([]byte("c"), nonce...))
		require.NoError(t, err)
		b, err := scheme.Commit("abc", nonce)
		require.NoError(t, err)
		assert.NotEqual(t, a.ValueHash, b.ValueHash)
	})

	t.Run("short nonces are rejected", func(t *testing.T) {
		_, err := scheme.Commit("x", []byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidNonce)
	})
}

func TestSignVerify(t *testing.T) {
	key := []byte("registry-key")
	sig := Sign([]byte("root-v1"), key)

	assert.True(t, VerifySignature([]byte("root-v1"), sig, key))
	assert.False(t, VerifySignature([]byte("root-v2"), sig, key))
	assert.False(t, VerifySignature([]byte("root-v1"), sig, []byte("other")))
}
