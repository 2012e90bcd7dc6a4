package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// CookieSigner signs and verifies cookie values with HMAC-SHA256.
// The refresh token travels exclusively in a signed cookie, so a tampered
// or forged cookie must be detectable before the token inside it is ever
// parsed.
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner creates a signer from a shared secret.
// The secret must be at least 32 bytes of high-entropy material.
func NewCookieSigner(secret []byte) (*CookieSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("cookie secret must be at least 32 bytes, got %d", len(secret))
	}
	return &CookieSigner{secret: secret}, nil
}

// Sign returns the value with its HMAC appended as "value.signature".
// The signature is base64url encoded without padding so the result is safe
// inside a cookie.
func (s *CookieSigner) Sign(value string) string {
	return value + "." + s.signature(value)
}

// Verify checks a signed cookie value and returns the original value.
// Returns false for missing, malformed, or forged signatures.
func (s *CookieSigner) Verify(signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", false
	}

	value, sig := signed[:idx], signed[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.signature(value))) {
		return "", false
	}
	return value, true
}

func (s *CookieSigner) signature(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
