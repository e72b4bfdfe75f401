package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// NewRandomString returns a URL-safe random string carrying n bytes of
// entropy.
func NewRandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCSRFToken returns a random double-submit token.
func NewCSRFToken() (string, error) {
	return NewRandomString(24)
}

// NewVerificationCode draws a 6-digit code uniformly from 100000-999999.
// The code space is small on purpose; the short redemption window and the
// auth rate limits carry the rest of the weight.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
