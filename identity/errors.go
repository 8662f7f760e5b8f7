package identity

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them
type Kind int

// Error kinds
const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindExpired
	KindAuthMismatch
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindAuthMismatch:
		return "auth_mismatch"
	case KindDependency:
		return "dependency"
	}
	return "unknown"
}

// Error is returned by every operation in this package. Code is stable and
// safe to hand to clients; Err carries the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel still compare equal
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrAlreadyRegistered     = &Error{Kind: KindConflict, Code: "ALREADY_REGISTERED", Message: "email already registered"}
	ErrDuplicateEmail        = &Error{Kind: KindConflict, Code: "DUPLICATE_EMAIL", Message: "duplicate email"}
	ErrAccountNotFound       = &Error{Kind: KindNotFound, Code: "ACCOUNT_NOT_FOUND", Message: "account not found"}
	ErrNoPendingRequest      = &Error{Kind: KindNotFound, Code: "NO_PENDING_REQUEST", Message: "no pending verification for this email"}
	ErrCodeExpired           = &Error{Kind: KindExpired, Code: "CODE_EXPIRED", Message: "verification code expired"}
	ErrCodeMismatch          = &Error{Kind: KindAuthMismatch, Code: "CODE_MISMATCH", Message: "invalid verification code"}
	ErrTooManyAttempts       = &Error{Kind: KindAuthMismatch, Code: "TOO_MANY_ATTEMPTS", Message: "too many invalid attempts, request a new code"}
	ErrInvalidOrExpiredToken = &Error{Kind: KindAuthMismatch, Code: "INVALID_OR_EXPIRED_TOKEN", Message: "invalid or expired token"}
	ErrInvalidCredentials    = &Error{Kind: KindAuthMismatch, Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrVerificationRequired  = &Error{Kind: KindValidation, Code: "VERIFICATION_REQUIRED", Message: "email verification is required, request a code first"}
	ErrDeliveryFailed        = &Error{Kind: KindDependency, Code: "DELIVERY_FAILED", Message: "failed to deliver notification"}
)

// Invalid builds a validation error for a single request field
func Invalid(field, message string) error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Field: field}
}

// Dependency wraps a failure of the directory, a store or the dispatcher
func Dependency(op string, err error) error {
	return &Error{Kind: KindDependency, Code: "DEPENDENCY_FAILURE", Message: op + " failed", Err: err}
}

// Delivery wraps a dispatcher failure. The secret stays valid.
func Delivery(err error) error {
	return &Error{Kind: KindDependency, Code: ErrDeliveryFailed.Code, Message: ErrDeliveryFailed.Message, Err: err}
}

// KindOf returns the kind of err, treating anything that is not an *Error as a dependency failure
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// wrapStore passes domain errors through and wraps everything else
func wrapStore(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Dependency(op, err)
}
