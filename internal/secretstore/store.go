// Package secretstore protects client secrets and cached access tokens
// from casual memory inspection and inadvertent logging (spec §4.1).
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const keySize = 32 // AES-256

// SecretDecryptionError indicates ciphertext could not be authenticated
// under this instance's key: either corruption, or an attempt to decrypt
// ciphertext produced by a different Store (I6).
type SecretDecryptionError struct {
	Reason string
}

func (e *SecretDecryptionError) Error() string {
	return fmt.Sprintf("secret decryption failed: %s", e.Reason)
}

func (e *SecretDecryptionError) Kind() string { return "SecretDecryptionError" }

// Store is an AEAD symmetric encryption instance. Each Store generates its
// own key at construction; the key lives only in process memory and is
// never persisted (spec §4.1). Encrypt and Decrypt are safe for concurrent
// use.
type Store struct {
	gcm cipher.AEAD
}

// New generates a fresh random key and constructs a Store. Construction
// failure (insufficient entropy) is fatal at startup, per spec §4.1.
func New() (*Store, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating secret store key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing AEAD mode: %w", err)
	}
	return &Store{gcm: gcm}, nil
}

// Encrypt seals plaintext under this instance's key with a fresh random
// nonce, prepended to the returned ciphertext. Encrypting the same
// plaintext twice yields different ciphertexts, since the nonce differs
// each call.
func (s *Store) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return ciphertext, nil
}

// Decrypt opens ciphertext produced by this instance's Encrypt. Ciphertext
// produced under a different key, or corrupted in transit, fails with
// SecretDecryptionError.
func (s *Store) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", &SecretDecryptionError{Reason: "ciphertext shorter than nonce"}
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &SecretDecryptionError{Reason: "authentication failed"}
	}
	return string(plaintext), nil
}
