package domain

import (
	"errors"
	"fmt"
)

// Authentication errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrSessionInactive = errors.New("session is not active")
	ErrMissingIdentity = errors.New("missing identity in session")
)

// Token errors.
var (
	ErrTokenGeneration = errors.New("token generation failed")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrSecretTooShort  = errors.New("session token secret too short")
)

// Sign-in errors.
var (
	ErrInvalidIdentifier = errors.New("identifier is invalid")
	ErrUnknownIdentifier = errors.New("identifier not found")
	ErrInvalidCode       = errors.New("verification code is invalid")
	ErrFlowExpired       = errors.New("sign-in flow expired")
	ErrAttemptInvalid    = errors.New("sign-in attempt invalid")
)

// External service errors.
var (
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrInvalidKey          = errors.New("invalid provider key")
	ErrNotInitialized      = errors.New("client not initialized")
)

// Rate limiting errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ProviderMessageError carries the user-facing message the identity provider
// attached to a rejected request. Kind is one of the sentinel errors above.
type ProviderMessageError struct {
	Kind error
	ID   int64
	Text string
}

func (e *ProviderMessageError) Error() string {
	if e.Text == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *ProviderMessageError) Unwrap() error {
	return e.Kind
}

// MessageText returns the provider text of err if it carries one, otherwise
// a generic sentence derived from the sentinel.
func MessageText(err error) string {
	var pe *ProviderMessageError
	if errors.As(err, &pe) && pe.Text != "" {
		return pe.Text
	}
	switch {
	case errors.Is(err, ErrUnknownIdentifier):
		return "Couldn't find your account."
	case errors.Is(err, ErrInvalidIdentifier):
		return "Enter a valid email address."
	case errors.Is(err, ErrInvalidCode):
		return "Incorrect code."
	case errors.Is(err, ErrFlowExpired), errors.Is(err, ErrAttemptInvalid):
		return "Your sign-in attempt expired. Start again."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Try again later."
	default:
		return "Something went wrong. Try again."
	}
}
