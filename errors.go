package gatekeeper

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized covers every authentication failure: missing, invalid
	// or expired token, missing session, role mismatch. It never says which.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for unknown accounts and
	// wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden is returned when an authenticated actor lacks the role an
	// operation needs.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited is returned when a rate limit policy rejects a request.
	ErrRateLimited = errors.New("too many requests, please try again later")
	// ErrInvalidInput is the parent of every ValidationError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownRole is returned for a role outside USER, ADMIN, ADMINISTRATOR.
	ErrUnknownRole = errors.New("unknown role")

	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionLimitExceeded = errors.New("session limit exceeded")

	ErrAdminRequestExists             = errors.New("an admin request for this email is already pending")
	ErrAdminRequestPreviouslyRejected = errors.New("previous request was rejected, contact support")
	ErrAdminAlreadyExists             = errors.New("an admin account with this email already exists")
	ErrAdminRequestProcessed          = errors.New("admin request already processed")
	ErrAdminRequestNotFound           = errors.New("admin request not found")

	ErrPasswordResetInvalid     = errors.New("password reset link is invalid or expired")
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	ErrPasswordPolicy           = errors.New("password policy violation")

	// ErrStoreUnavailable wraps key-value store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrDatabaseUnavailable wraps relational store failures.
	ErrDatabaseUnavailable = errors.New("database unavailable")
	// ErrMailUnavailable is returned when no mailer is configured or
	// synchronous delivery failed.
	ErrMailUnavailable = errors.New("mail delivery unavailable")
	// ErrEngineNotReady is returned when an operation's dependency was not
	// supplied to the Builder.
	ErrEngineNotReady = errors.New("engine not ready")
)

// ErrorKind classifies errors for the transport boundary.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindRateLimited  ErrorKind = "rate_limited"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// KindOf classifies err. Anything unrecognised is KindInternal; nil is "".
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAdminRequestExists),
		errors.Is(err, ErrAdminRequestPreviouslyRejected),
		errors.Is(err, ErrAdminAlreadyExists),
		errors.Is(err, ErrAdminRequestProcessed),
		errors.Is(err, ErrSessionLimitExceeded):
		return KindConflict
	case errors.Is(err, ErrAdminRequestNotFound),
		errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownRole),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordResetInvalid):
		return KindValidation
	default:
		return KindInternal
	}
}

// ValidationError carries per-field messages. It unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a *ValidationError for fields.
func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalidInput.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ErrInvalidInput.Error())
	b.WriteString(": ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
