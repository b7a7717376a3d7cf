package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/metrics"
)

// DefaultAttemptTTL bounds how long a code may be entered after it was sent.
const DefaultAttemptTTL = 10 * time.Minute

// StartedSignIn is returned after the code was sent.
type StartedSignIn struct {
	Attempt string // sealed domain.SignInAttempt
	Expires time.Time
}

// CompletedSignIn is returned after the code was accepted.
type CompletedSignIn struct {
	Identity         *domain.Identity
	ClientToken      string
	SessionToken     string
	SessionExpiresAt time.Time
	RedirectTo       string
}

// SignIn runs the two-step email code sign-in.
type SignIn struct {
	provider   domain.LoginProvider
	codec      domain.AttemptCodec
	tokens     domain.SessionTokenIssuer
	validate   *ValidateSession
	attemptTTL time.Duration
	logger     *slog.Logger
}

// NewSignIn creates a new SignIn usecase.
func NewSignIn(p domain.LoginProvider, c domain.AttemptCodec, t domain.SessionTokenIssuer, v *ValidateSession, l *slog.Logger) *SignIn {
	return &SignIn{
		provider:   p,
		codec:      c,
		tokens:     t,
		validate:   v,
		attemptTTL: DefaultAttemptTTL,
		logger:     l,
	}
}

// NormalizeIdentifier trims and lower-cases an email identifier and rejects
// anything that is not a bare address.
func NormalizeIdentifier(identifier string) (string, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return "", &domain.ProviderMessageError{Kind: domain.ErrInvalidIdentifier, Text: "Enter an email address."}
	}
	addr, err := mail.ParseAddress(identifier)
	if err != nil || addr.Address != identifier || addr.Name != "" {
		return "", &domain.ProviderMessageError{Kind: domain.ErrInvalidIdentifier, Text: "Enter a valid email address."}
	}
	return identifier, nil
}

// Start sends a code to identifier. redirectTo is carried to Complete.
func (uc *SignIn) Start(ctx context.Context, identifier, redirectTo string) (*StartedSignIn, error) {
	identifier, err := NormalizeIdentifier(identifier)
	if err != nil {
		metrics.RecordSignIn("identifier", err)
		return nil, err
	}

	start := time.Now()
	flowID, err := uc.provider.StartCodeLogin(ctx, identifier)
	metrics.ObserveProviderCall("start_login", start, err)
	metrics.RecordSignIn("identifier", err)
	if err != nil {
		uc.logger.InfoContext(ctx, "sign-in start rejected", "error", err)
		return nil, err
	}

	expires := time.Now().Add(uc.attemptTTL)
	sealed, err := uc.codec.Seal(domain.SignInAttempt{
		FlowID:     flowID,
		Identifier: identifier,
		RedirectTo: redirectTo,
		ExpiresAt:  expires,
	})
	if err != nil {
		return nil, err
	}

	return &StartedSignIn{Attempt: sealed, Expires: expires}, nil
}

// Attempt opens a sealed attempt without completing it.
func (uc *SignIn) Attempt(sealed string) (*domain.SignInAttempt, error) {
	if sealed == "" {
		return nil, domain.ErrAttemptInvalid
	}
	return uc.codec.Open(sealed)
}

// Complete submits code for the sealed attempt and issues the session.
func (uc *SignIn) Complete(ctx context.Context, sealed, code string) (*CompletedSignIn, error) {
	attempt, err := uc.Attempt(sealed)
	if err != nil {
		metrics.RecordSignIn("code", err)
		return nil, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		err := &domain.ProviderMessageError{Kind: domain.ErrInvalidCode, Text: "Enter the code from your email."}
		metrics.RecordSignIn("code", err)
		return nil, err
	}

	start := time.Now()
	result, err := uc.provider.CompleteCodeLogin(ctx, attempt.FlowID, attempt.Identifier, code)
	metrics.ObserveProviderCall("complete_login", start, err)
	metrics.RecordSignIn("code", err)
	if err != nil {
		uc.logger.InfoContext(ctx, "sign-in code rejected", "error", err)
		return nil, err
	}

	uc.validate.Prime(ctx, result.SessionToken, result.Identity)

	sessionToken, expiresAt, err := uc.tokens.Issue(result.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenGeneration, err)
	}

	uc.logger.InfoContext(ctx, "user signed in", "user_id", result.Identity.UserID)

	return &CompletedSignIn{
		Identity:         result.Identity,
		ClientToken:      result.SessionToken,
		SessionToken:     sessionToken,
		SessionExpiresAt: expiresAt,
		RedirectTo:       attempt.RedirectTo,
	}, nil
}
