package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	sealKeyOnce sync.Once
	sealKey     []byte
	sealKeyErr  error
	sealKeyPath string
)

// SetSealKeyPath configures where to load the sealing key from. Must be
// called before the first Seal/Open operation.
func SetSealKeyPath(path string) {
	sealKeyPath = path
}

// loadSealKey derives a 32-byte XChaCha20-Poly1305 key from either:
// 1. File specified by sealKeyPath (if set)
// 2. HANDOFF_SEAL_KEY environment variable
// 3. A freshly generated ephemeral key (sealed values don't survive restart)
func loadSealKey() ([]byte, error) {
	var keyMaterial []byte

	if sealKeyPath != "" {
		data, err := os.ReadFile(sealKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read seal key file: %w", err)
		}
		keyMaterial = data
	} else if envKey := os.Getenv("HANDOFF_SEAL_KEY"); envKey != "" {
		keyMaterial = []byte(envKey)
	} else {
		// Ephemeral fallback. Handoff sessions are minutes-lived, so losing
		// sealed provider tokens across a restart only aborts in-flight flows.
		keyMaterial = make([]byte, 32)
		if _, err := rand.Read(keyMaterial); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral seal key: %w", err)
		}
	}

	sum := sha256.Sum256(keyMaterial)
	return sum[:], nil
}

func getSealKey() ([]byte, error) {
	sealKeyOnce.Do(func() {
		sealKey, sealKeyErr = loadSealKey()
	})
	if sealKeyErr != nil {
		return nil, sealKeyErr
	}
	return sealKey, nil
}

// Seal encrypts a secret using XChaCha20-Poly1305. The output layout is
// [24-byte nonce][ciphertext + 16-byte tag]. Used to keep provider tokens
// opaque at rest inside session records.
func Seal(plaintext []byte) ([]byte, error) {
	key, err := getSealKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func Open(sealed []byte) ([]byte, error) {
	key, err := getSealKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("cryptox: sealed data too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("cryptox: sealed data authentication failed")
	}

	return plaintext, nil
}
