package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/metrics"
)

// Credentials are the raw values a request presented.
type Credentials struct {
	SessionToken string // __session cookie
	BearerToken  string // Authorization: Bearer
	ClientToken  string // __client cookie, the provider session token
}

// Resolution is the outcome of ResolveSession.
type Resolution struct {
	Session *domain.Session
	// MintedToken is set when a fresh session token was issued and must be
	// written back to the client.
	MintedToken     string
	MintedExpiresAt time.Time
	// ClearClient is set when the provider rejected ClientToken.
	ClearClient bool
}

// ResolveSession turns request credentials into a session. The short-lived
// session token is trusted on its own; the provider token is checked
// against the identity provider and, if valid, a new session token is minted.
type ResolveSession struct {
	validate *ValidateSession
	tokens   domain.SessionTokenIssuer
	logger   *slog.Logger
}

// NewResolveSession creates a new ResolveSession usecase.
func NewResolveSession(v *ValidateSession, t domain.SessionTokenIssuer, l *slog.Logger) *ResolveSession {
	return &ResolveSession{validate: v, tokens: t, logger: l}
}

// Execute resolves creds. A nil error always comes with a non-nil Session.
// ErrSessionNotFound means the request is anonymous.
func (uc *ResolveSession) Execute(ctx context.Context, creds Credentials) (*Resolution, error) {
	if creds.SessionToken != "" {
		identity, err := uc.tokens.Verify(creds.SessionToken)
		metrics.RecordSessionResolution(domain.SourceSessionCookie, err)
		if err == nil {
			return &Resolution{Session: &domain.Session{Identity: *identity, Source: domain.SourceSessionCookie}}, nil
		}
		uc.logger.DebugContext(ctx, "session token rejected", "error", err)
	}

	if creds.BearerToken != "" {
		identity, err := uc.tokens.Verify(creds.BearerToken)
		metrics.RecordSessionResolution(domain.SourceBearer, err)
		if err == nil {
			return &Resolution{Session: &domain.Session{Identity: *identity, Source: domain.SourceBearer}}, nil
		}
		uc.logger.DebugContext(ctx, "bearer token rejected", "error", err)
	}

	if creds.ClientToken == "" {
		return &Resolution{}, domain.ErrSessionNotFound
	}

	identity, err := uc.validate.Execute(ctx, creds.ClientToken)
	metrics.RecordSessionResolution(domain.SourceClientToken, err)
	if err != nil {
		if isRejection(err) {
			uc.logger.InfoContext(ctx, "provider session rejected", "error", err)
			return &Resolution{ClearClient: true}, fmt.Errorf("%w: %w", domain.ErrSessionNotFound, err)
		}
		return &Resolution{}, err
	}

	minted, expiresAt, err := uc.tokens.Issue(identity)
	if err != nil {
		uc.logger.ErrorContext(ctx, "failed to issue session token", "error", err)
		if errors.Is(err, domain.ErrTokenGeneration) {
			return &Resolution{}, err
		}
		return &Resolution{}, fmt.Errorf("%w: %w", domain.ErrTokenGeneration, err)
	}

	return &Resolution{
		Session:         &domain.Session{Identity: *identity, Source: domain.SourceClientToken},
		MintedToken:     minted,
		MintedExpiresAt: expiresAt,
	}, nil
}
