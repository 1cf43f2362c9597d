package token

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrExhausted is returned when the entropy source keeps yielding zero.
var ErrExhausted = errors.New("token: entropy source produced no usable value")

// maxZeroDraws bounds retries when a draw masks down to zero.
const maxZeroDraws = 8

// Source produces positive 63-bit tokens.
type Source interface {
	Next() (int64, error)
}

// RandomSource draws tokens from an io.Reader, crypto/rand by default.
type RandomSource struct {
	r io.Reader
}

// NewSource returns a Source backed by crypto/rand.
func NewSource() *RandomSource {
	return &RandomSource{r: rand.Reader}
}

// NewSourceFrom returns a Source backed by r. Intended for tests.
func NewSourceFrom(r io.Reader) *RandomSource {
	return &RandomSource{r: r}
}

// Next returns a token in [1, math.MaxInt64].
func (s *RandomSource) Next() (int64, error) {
	var buf [8]byte
	for i := 0; i < maxZeroDraws; i++ {
		if _, err := io.ReadFull(s.r, buf[:]); err != nil {
			return 0, err
		}
		v := int64(binary.BigEndian.Uint64(buf[:]) & math.MaxInt64)
		if v != 0 {
			return v, nil
		}
	}
	return 0, ErrExhausted
}

// Generate returns a crypto-random positive 63-bit token.
func Generate() (int64, error) {
	return NewSource().Next()
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}
