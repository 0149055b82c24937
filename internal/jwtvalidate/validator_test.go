package jwtvalidate

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRSAKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return priv, string(pemBytes)
}

func signToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

// P8: JWT disabled => pass-through.
func TestValidate_DisabledPassesThroughAnyString(t *testing.T) {
	v, err := New("test", "", "", "", nil)
	require.NoError(t, err)

	result := v.Validate("not-even-a-real-jwt")
	assert.True(t, result.Valid)
}

func TestValidate_ValidTokenPasses(t *testing.T) {
	priv, pub := generateRSAKeyPair(t)
	v, err := New("test", pub, "dicom-api", "https://issuer.example.com", nil)
	require.NoError(t, err)

	token := signToken(t, priv, jwt.MapClaims{
		"aud": "dicom-api",
		"iss": "https://issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := v.Validate(token)
	assert.True(t, result.Valid)
}

func TestValidate_ExpiredTokenFails(t *testing.T) {
	priv, pub := generateRSAKeyPair(t)
	v, err := New("test", pub, "", "", nil)
	require.NoError(t, err)

	token := signToken(t, priv, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	result := v.Validate(token)
	assert.False(t, result.Valid)
	assert.Equal(t, "expired", result.Reason)
}

func TestValidate_WrongSignerFails(t *testing.T) {
	signer, _ := generateRSAKeyPair(t)
	_, wrongPub := generateRSAKeyPair(t)
	v, err := New("test", wrongPub, "", "", nil)
	require.NoError(t, err)

	token := signToken(t, signer, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := v.Validate(token)
	assert.False(t, result.Valid)
	assert.Equal(t, "invalid_signature", result.Reason)
}

func TestValidate_AudienceMismatchFails(t *testing.T) {
	priv, pub := generateRSAKeyPair(t)
	v, err := New("test", pub, "expected-aud", "", nil)
	require.NoError(t, err)

	token := signToken(t, priv, jwt.MapClaims{
		"aud": "other-aud",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := v.Validate(token)
	assert.False(t, result.Valid)
}

func TestNew_RefusesNoneAlgorithm(t *testing.T) {
	_, err := New("test", "", "", "", []string{"none"})
	require.Error(t, err)
}

func TestValidate_WrongAlgorithmRejected(t *testing.T) {
	priv, pub := generateRSAKeyPair(t)
	v, err := New("test", pub, "", "", []string{"ES256"})
	require.NoError(t, err)

	token := signToken(t, priv, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	result := v.Validate(token)
	assert.False(t, result.Valid)
}
