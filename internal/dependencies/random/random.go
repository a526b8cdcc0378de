package random

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// Random provides the unguessable identifiers used for sessions and tokens.
// It can be mocked for testing.
type Random interface {
	// UUID returns a new random (version 4) UUID string
	UUID() string

	// Token returns n random bytes encoded as unpadded base64url
	Token(n int) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// UUID returns a random UUID
func (r *CryptoRandom) UUID() string {
	return uuid.NewString()
}

// Token returns n cryptographically random bytes, base64url encoded
func (r *CryptoRandom) Token(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
