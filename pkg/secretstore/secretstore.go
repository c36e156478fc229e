// Package secretstore implements the encrypted-at-rest key/value layer (C1)
// that sits in front of the OS secret store collaborator. The core never
// calls an OS keychain directly: it encrypts every payload before handing it
// to a Backend, and decrypts on the way out, so a plaintext token byte is
// never observed by the backend or by anything that inspects it at rest.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("secretstore: key not found")

// pbkdf2Iterations is the minimum iteration count required by spec §4.1.
const pbkdf2Iterations = 100_000

// Backend is the external OS secret store collaborator: a scoped key/value
// service. The core treats it as untrusted storage and never writes
// cleartext into it.
type Backend interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error) // ErrNotFound if absent
	Delete(key string) error
}

// Store wraps a Backend with authenticated encryption. Keys are derived once
// per Store via PBKDF2-HMAC-SHA256 from appName XOR'd with a host-stable
// identity, salted per installation, as required by §4.1.
type Store struct {
	backend Backend
	aead    cipher.AEAD
}

// New derives the encryption key from appName and hostStableID and wraps
// backend. installSalt should be stable across the life of the installation
// (e.g. persisted once at first run) — it is not secret, only unique.
func New(backend Backend, appName, hostStableID string, installSalt []byte) (*Store, error) {
	if backend == nil {
		return nil, errors.New("secretstore: nil backend")
	}
	if len(installSalt) == 0 {
		return nil, errors.New("secretstore: empty install salt")
	}

	seed := xorStrings(appName, hostStableID)
	key := pbkdf2.Key([]byte(seed), installSalt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretstore: building cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretstore: building AEAD: %w", err)
	}

	return &Store{backend: backend, aead: aead}, nil
}

// Put encrypts value and stores it under key.
func (s *Store) Put(key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("secretstore: generating nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, value, nil)
	if err := s.backend.Put(key, sealed); err != nil {
		return fmt.Errorf("secretstore: writing %s: %w", key, err)
	}
	return nil
}

// Get retrieves and decrypts the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	sealed, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("secretstore: reading %s: %w", key, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("secretstore: %s: ciphertext too short", key)
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secretstore: %s: decryption failed: %w", key, err)
	}
	return plain, nil
}

// Delete removes the value stored under key.
func (s *Store) Delete(key string) error {
	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("secretstore: deleting %s: %w", key, err)
	}
	return nil
}

func xorStrings(a, b string) string {
	out := make([]byte, max(len(a), len(b)))
	for i := range out {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = av ^ bv
	}
	return string(out)
}
