// Package devidp is a development identity provider that speaks the subset
// of the Kratos public and admin HTTP API used by the email code login.
package devidp

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("devidp: not found")
	ErrConflict = errors.New("devidp: already exists")
)

// Flow states.
const (
	StateChooseMethod    = "choose_method"
	StateSentEmail       = "sent_email"
	StatePassedChallenge = "passed_challenge"
)

// Identity is a registered account.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Flow is a native login flow.
type Flow struct {
	ID         string    `json:"id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	RequestURL string    `json:"request_url"`
	State      string    `json:"state"`
	Identifier string    `json:"identifier,omitempty"`
	Code       string    `json:"code,omitempty"`
	Attempts   int       `json:"attempts"`
}

// Session is an issued native session.
type Session struct {
	ID              string    `json:"id"`
	Token           string    `json:"token"`
	IdentityID      string    `json:"identity_id"`
	Active          bool      `json:"active"`
	IssuedAt        time.Time `json:"issued_at"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Store persists identities, flows and sessions.
type Store interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	IdentityByID(ctx context.Context, id string) (*Identity, error)
	IdentityByEmail(ctx context.Context, email string) (*Identity, error)
	ListIdentities(ctx context.Context) ([]*Identity, error)

	SaveFlow(ctx context.Context, flow *Flow) error
	Flow(ctx context.Context, id string) (*Flow, error)

	SaveSession(ctx context.Context, session *Session) error
	SessionByToken(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
}
