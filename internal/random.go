package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	sessionIDSize  = 16
	resetTokenSize = 32
)

// NewSessionID returns 16 random bytes encoded as unpadded base64url.
func NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidSessionID reports whether s has the shape produced by NewSessionID.
func ValidSessionID(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == sessionIDSize
}

// NewResetToken returns 32 random bytes hex encoded. The token is used
// verbatim inside a Redis key and a URL query parameter.
func NewResetToken() (string, error) {
	var raw [resetTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidResetToken reports whether s has the shape produced by NewResetToken.
func ValidResetToken(s string) bool {
	if len(s) != resetTokenSize*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NewOTP returns a uniformly random numeric code of 6 to 10 digits,
// zero-padded, for one-time code emails.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", fmt.Errorf("otp digits must be between 6 and 10, got %d", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
