package domain

import "time"

// Identity represents an authenticated user identity from the identity provider.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CachedSession holds session data stored in the cache.
type CachedSession struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionSource records which credential a request session was resolved from.
type SessionSource string

const (
	SourceSessionCookie SessionSource = "session_cookie"
	SourceBearer        SessionSource = "bearer"
	SourceClientToken   SessionSource = "client_token"
)

// Session is the per-request view of a signed-in user.
type Session struct {
	Identity
	Source SessionSource
}

// SignInAttempt is the state carried between the identifier and code steps.
type SignInAttempt struct {
	FlowID     string    `json:"f"`
	Identifier string    `json:"i"`
	RedirectTo string    `json:"r,omitempty"`
	ExpiresAt  time.Time `json:"e"`
}

// Expired reports whether the attempt is past its deadline.
func (a SignInAttempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// SignInResult is returned by a completed sign-in.
type SignInResult struct {
	Identity     *Identity
	SessionToken string
}
