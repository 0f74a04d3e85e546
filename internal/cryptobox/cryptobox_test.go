package cryptobox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Invariant 8: decrypt(encrypt(x)) == x AND encrypt(x) != x for any
// non-empty x.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New("0123456789abcdef0123456789abcdef") // 32 hex chars (16 decoded bytes), hashed via sha256 fallback
	require.NoError(t, err)

	for _, plaintext := range []string{"a", "access-token-xyz", "refresh-token-with-unicode-é"} {
		cipher, err := box.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, cipher)

		decrypted, err := box.Decrypt(cipher)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	box, err := New("test-session-secret-at-least-32-bytes!!")
	require.NoError(t, err)

	a, err := box.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := box.Encrypt("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce should make repeated encryptions differ")
}

func TestOverlayTokenRoundTrip(t *testing.T) {
	signer := NewOverlaySigner("test-session-secret-at-least-32-bytes!!")
	token, err := signer.Sign("tenant-123", time.Hour)
	require.NoError(t, err)

	tenantID, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-123", tenantID)
}
