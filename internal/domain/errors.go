package domain

import "errors"

var (
	// ErrUnauthorized is returned when an operation needs an identity the caller does not have.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller is authenticated but holds the wrong role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned by login when the email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEntry is returned when a student submits a game they already completed.
	ErrDuplicateEntry = errors.New("already completed")
	// ErrAccountExists is returned by signup when the name or email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrStoreUnavailable wraps any failure of the underlying persistence.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownModality indicates a game type outside the four known modalities.
	ErrUnknownModality = errors.New("unknown game modality")
)
