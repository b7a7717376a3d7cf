package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/metrics"
)

// SignOut revokes the provider session and forgets its cached identity.
type SignOut struct {
	revoker  domain.SessionRevoker
	validate *ValidateSession
	logger   *slog.Logger
}

// NewSignOut creates a new SignOut usecase.
func NewSignOut(r domain.SessionRevoker, v *ValidateSession, l *slog.Logger) *SignOut {
	return &SignOut{revoker: r, validate: v, logger: l}
}

// Execute signs out clientToken. An already ended session is not an error.
func (uc *SignOut) Execute(ctx context.Context, clientToken string) error {
	if clientToken == "" {
		return nil
	}
	uc.validate.Invalidate(ctx, clientToken)

	start := time.Now()
	err := uc.revoker.RevokeSession(ctx, clientToken)
	metrics.ObserveProviderCall("logout", start, err)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		uc.logger.WarnContext(ctx, "provider logout failed", "error", err)
		return err
	}
	return nil
}
