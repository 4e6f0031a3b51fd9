// Package internal holds random-material and hashing helpers shared by
// the engine packages. Everything here draws from crypto/rand.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// backupCodeAlphabet deliberately excludes lowercase so codes survive
// being read aloud or written down.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// NewBackupCode returns a recovery code of the given length drawn from
// an uppercase alphanumeric alphabet with ambiguous glyphs removed.
func NewBackupCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid backup code length %d", length)
	}
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate backup code: %w", err)
		}
		code[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NewOTP returns a decimal one-time code of the given digit count,
// zero-padded.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", fmt.Errorf("invalid otp digit count %d", digits)
	}
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// HashToken returns the hex SHA-256 digest of an opaque token string.
// Used as the session lookup key and for stored codes that must never
// be recoverable in plaintext.
func HashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
