// Package cryptox seals credential values before they reach disk.
//
// The fallback credential backend is a plain SQLite file without any OS
// protection, so values are encrypted with a per-installation key. This is
// not a substitute for a hardware keystore; it only keeps tokens out of
// casual file reads and backups.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Sealer performs authenticated encryption of small values using
// ChaCha20-Poly1305. The output format is [nonce][ciphertext+tag].
type Sealer struct {
	key []byte
}

// NewSealer derives a Sealer from arbitrary key material. The material is
// hashed so callers may pass a passphrase, a random blob, or a file's
// contents without worrying about length.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, fmt.Errorf("cryptox: empty key material")
	}

	hash := sha256.Sum256(material)
	return &Sealer{key: hash[:]}, nil
}

// LoadOrCreateKey reads key material from path, creating a new random key
// file (0600) on first use. The returned material feeds NewSealer.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cryptox: read key file: %w", err)
	}

	material := make([]byte, KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("cryptox: generate key: %w", err)
	}

	if err := os.WriteFile(path, material, 0o600); err != nil {
		return nil, fmt.Errorf("cryptox: write key file: %w", err)
	}

	return material, nil
}

// Seal encrypts and authenticates plaintext with a random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag to the nonce.
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal, failing if the value was tampered
// with or sealed under a different key.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("cryptox: sealed value too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}

	return plaintext, nil
}
