package domain

import (
	"context"
	"time"
)

// SessionValidator validates a provider session token against the identity provider.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionToken string) (*Identity, error)
}

// LoginProvider drives the provider's email code login flow.
type LoginProvider interface {
	StartCodeLogin(ctx context.Context, identifier string) (flowID string, err error)
	CompleteCodeLogin(ctx context.Context, flowID, identifier, code string) (*SignInResult, error)
}

// SessionRevoker ends a provider session.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, sessionToken string) error
}

// ProviderHealth reports whether the identity provider is reachable.
type ProviderHealth interface {
	Version(ctx context.Context) (string, error)
}

// SessionCache provides read/write access to cached session data.
type SessionCache interface {
	Get(ctx context.Context, key string) (*CachedSession, bool)
	Set(ctx context.Context, key string, session CachedSession)
	Delete(ctx context.Context, key string)
}

// SessionTokenIssuer mints and verifies the short-lived session token.
type SessionTokenIssuer interface {
	Issue(identity *Identity) (token string, expiresAt time.Time, err error)
	Verify(token string) (*Identity, error)
}

// AttemptCodec seals sign-in attempts into an opaque cookie value.
type AttemptCodec interface {
	Seal(attempt SignInAttempt) (string, error)
	Open(value string) (*SignInAttempt, error)
}
