package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// resetTokenBytes gives a 64 character hex token
const resetTokenBytes = 32

var codeSpace = big.NewInt(1000000)

// SecretGenerator issues the short-lived secrets handed to users
type SecretGenerator interface {
	// VerificationCode returns a 6 digit numeric code, uniform over 000000-999999
	VerificationCode() (string, error)
	// ResetToken returns an opaque alphanumeric token of at least 20 characters
	ResetToken() (string, error)
}

// RandomSecrets draws secrets from crypto/rand
type RandomSecrets struct{}

// VerificationCode implements SecretGenerator
func (RandomSecrets) VerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ResetToken implements SecretGenerator
func (RandomSecrets) ResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the form a reset token is stored in. Lookups hash the
// presented token and compare exactly.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
