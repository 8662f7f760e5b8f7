package identity

import (
	"net/mail"
	"strings"
)

const (
	minPasswordLength      = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength      = 72
	verificationCodeLength = 6
)

// NormalizeEmail trims and lowercases an email so it can be used as a key
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// normalizeAndValidateEmail returns the canonical form of email or a validation error
func normalizeAndValidateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", Invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Invalid("email", "email is not valid")
	}
	return email, nil
}

func validatePassword(password string) error {
	if password == "" {
		return Invalid("password", "password is required")
	}
	if len(password) < minPasswordLength {
		return Invalid("password", "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return Invalid("password", "password must be at most 72 bytes")
	}
	return nil
}

func validateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return Invalid("code", "code is required")
	}
	if len(code) != verificationCodeLength {
		return Invalid("code", "code must be 6 digits")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return Invalid("code", "code must be 6 digits")
		}
	}
	return nil
}

func validateAccountFields(f AccountFields) error {
	if strings.TrimSpace(f.Name) == "" {
		return Invalid("name", "name is required")
	}
	return validatePassword(f.Password)
}
