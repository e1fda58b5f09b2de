// Package signing produces and checks HMAC signatures for certificate links.
// A link names one verdict snapshot and an expiry, so an old link can never
// export a verdict it was not issued for.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for a verdict id and expiry.
func (s *Signer) Sign(verdictID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	// The canonical payload fixes field order so Validate can rebuild it.
	payload := fmt.Sprintf("certificate:%s:%d", verdictID, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(verdictID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(verdictID, exp)
	// hmac.Equal performs constant-time comparison to avoid timing attacks.
	return hmac.Equal([]byte(expected), []byte(signature))
}
