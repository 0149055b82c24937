package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	ciphertext, err := s.Encrypt("client-secret-value")
	require.NoError(t, err)

	plaintext, err := s.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "client-secret-value", plaintext)
}

// P4: per-instance key isolation.
func TestDecrypt_FailsAcrossInstances(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("token-abc")
	require.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	require.Error(t, err)
	var decErr *SecretDecryptionError
	assert.ErrorAs(t, err, &decErr)
}

func TestEncrypt_NonceUniquenessYieldsDistinctCiphertext(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	c1, err := s.Encrypt("same-plaintext")
	require.NoError(t, err)
	c2, err := s.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)

	p1, err := s.Decrypt(c1)
	require.NoError(t, err)
	p2, err := s.Decrypt(c2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestDecrypt_RejectsCorruptedCiphertext(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	ciphertext, err := s.Encrypt("payload")
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = s.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestNew_GeneratesDistinctKeysPerInstance(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("probe")
	require.NoError(t, err)
	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err, "two freshly constructed stores must not share a key")
}
