package authcore

import (
	"fmt"
	"net/http"
)

// Error codes surfaced in HTTP responses
const (
	ErrorCodeUnauthorized  = "unauthorized"
	ErrorCodeConflict      = "conflict"
	ErrorCodeBadRequest    = "bad_request"
	ErrorCodeNotFound      = "not_found"
	ErrorCodeUpstreamError = "upstream_error"
	ErrorCodeServerError   = "server_error"
)

// AuthError represents an authentication error response
type AuthError struct {
	Code        string // Stable error code (e.g., "unauthorized", "conflict")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewAuthError creates a new authentication error
func NewAuthError(code, description string, status int) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Reusable error instances. Token verification failures are
// categorized internally (expired, invalid, revoked) but all map to a
// generic 401 so callers cannot distinguish a wrong token from a
// well-formed expired one.
var (
	// ErrTokenExpired indicates a token past its lifetime.
	ErrTokenExpired = NewAuthError(ErrorCodeUnauthorized, "token expired", http.StatusUnauthorized)

	// ErrTokenInvalid indicates a malformed token or bad signature.
	ErrTokenInvalid = NewAuthError(ErrorCodeUnauthorized, "invalid token", http.StatusUnauthorized)

	// ErrTokenRevoked indicates a refresh token instance that was
	// logged out or already exchanged.
	ErrTokenRevoked = NewAuthError(ErrorCodeUnauthorized, "token revoked", http.StatusUnauthorized)

	// ErrInvalidCredentials indicates a failed email/password login.
	ErrInvalidCredentials = NewAuthError(ErrorCodeUnauthorized, "invalid credentials", http.StatusUnauthorized)

	// ErrEmailNotConfirmed indicates a login before email confirmation.
	ErrEmailNotConfirmed = NewAuthError(ErrorCodeUnauthorized, "email not confirmed", http.StatusUnauthorized)

	// ErrStaleConfirmation indicates a refresh token whose confirmed
	// flag no longer matches the account.
	ErrStaleConfirmation = NewAuthError(ErrorCodeUnauthorized, "stale confirmation state", http.StatusUnauthorized)

	// ErrWrongPassword indicates a failed current-password check.
	ErrWrongPassword = NewAuthError(ErrorCodeUnauthorized, "wrong password", http.StatusUnauthorized)

	// ErrEmailInUse indicates a registration against a taken address.
	ErrEmailInUse = NewAuthError(ErrorCodeConflict, "email already registered", http.StatusConflict)

	// ErrPasswordMismatch indicates the two submitted passwords differ.
	ErrPasswordMismatch = NewAuthError(ErrorCodeBadRequest, "passwords do not match", http.StatusBadRequest)

	// ErrSamePassword indicates the new password equals the current one.
	ErrSamePassword = NewAuthError(ErrorCodeBadRequest, "new password matches current password", http.StatusBadRequest)

	// ErrMissingName indicates an OAuth profile without a usable name
	// during account creation.
	ErrMissingName = NewAuthError(ErrorCodeBadRequest, "profile is missing a name", http.StatusBadRequest)

	// ErrProfileIncomplete indicates an OAuth profile without an email.
	ErrProfileIncomplete = NewAuthError(ErrorCodeBadRequest, "profile is missing an email", http.StatusBadRequest)

	// ErrStateMismatch indicates an OAuth callback whose state does not
	// match the one issued for the flow.
	ErrStateMismatch = NewAuthError(ErrorCodeUnauthorized, "state mismatch", http.StatusUnauthorized)

	// ErrProviderNotFound indicates a disabled or unknown OAuth
	// provider, indistinguishable from a non-existent route.
	ErrProviderNotFound = NewAuthError(ErrorCodeNotFound, "not found", http.StatusNotFound)

	// ErrUpstream indicates an OAuth provider network or API failure.
	ErrUpstream = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeUpstreamError, desc, http.StatusBadGateway)
	}

	// ErrServer indicates an internal fault such as a signing failure.
	ErrServer = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)
