package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealing errors.
var (
	ErrKeyTooShort     = errors.New("storage: encryption key too short (minimum 16 bytes)")
	ErrOpenFailed      = errors.New("storage: record decryption failed - wrong key or corrupted data")
	ErrSealedNoKey     = errors.New("storage: record is sealed but no encryption key is configured")
	ErrUnknownEnvelope = errors.New("storage: unknown record envelope")
)

// MinKeyLength is the minimum length of the configured encryption secret.
const MinKeyLength = 16

const sealerInfo = "retrostate record v1"

// Record envelopes. The first byte of every stored value selects one.
const (
	envelopePlain  byte = 0x00
	envelopeSealed byte = 0x01
)

// Sealer encrypts stored records with XChaCha20-Poly1305.
// The 256-bit key is derived from a secret with HKDF-SHA256.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a record key from secret.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealerInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext. aad binds the ciphertext to its key.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrOpenFailed
	}
	plaintext, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// wrapValue frames an encoded record for storage, sealing it when a
// sealer is configured.
func wrapValue(s *Sealer, encoded, key []byte) ([]byte, error) {
	if s == nil {
		return append([]byte{envelopePlain}, encoded...), nil
	}
	sealed, err := s.Seal(encoded, key)
	if err != nil {
		return nil, err
	}
	return append([]byte{envelopeSealed}, sealed...), nil
}

// unwrapValue reverses wrapValue.
func unwrapValue(s *Sealer, value, key []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrUnknownEnvelope
	}
	switch value[0] {
	case envelopePlain:
		return value[1:], nil
	case envelopeSealed:
		if s == nil {
			return nil, ErrSealedNoKey
		}
		return s.Open(value[1:], key)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEnvelope, value[0])
	}
}
