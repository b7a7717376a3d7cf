package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// ValidateSession orchestrates provider session validation with a
// cache-through strategy. Concurrent lookups of one token share a single
// provider call.
type ValidateSession struct {
	validator domain.SessionValidator
	cache     domain.SessionCache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewValidateSession creates a new ValidateSession usecase.
func NewValidateSession(v domain.SessionValidator, c domain.SessionCache, l *slog.Logger) *ValidateSession {
	return &ValidateSession{validator: v, cache: c, logger: l}
}

// cacheKey keeps raw provider tokens out of the cache keyspace.
func cacheKey(sessionToken string) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return hex.EncodeToString(sum[:])
}

// Execute validates sessionToken and returns its identity.
func (uc *ValidateSession) Execute(ctx context.Context, sessionToken string) (*domain.Identity, error) {
	if sessionToken == "" {
		return nil, domain.ErrSessionNotFound
	}
	key := cacheKey(sessionToken)

	if cached, found := uc.cache.Get(ctx, key); found {
		return &domain.Identity{
			UserID:    cached.UserID,
			Email:     cached.Email,
			SessionID: cached.SessionID,
			ExpiresAt: cached.ExpiresAt,
		}, nil
	}

	// The provider call outlives any single caller; the gateway bounds it
	// with its own timeout.
	callCtx := context.WithoutCancel(ctx)
	ch := uc.group.DoChan(key, func() (any, error) {
		start := time.Now()
		identity, err := uc.validator.ValidateSession(callCtx, sessionToken)
		metrics.ObserveProviderCall("to_session", start, err)
		return identity, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		if isRejection(err) {
			uc.cache.Delete(ctx, key)
		}
		return nil, err
	}
	if res.Shared {
		uc.logger.DebugContext(ctx, "session validation shared with concurrent request")
	}

	identity := *v.(*domain.Identity)
	uc.Prime(ctx, sessionToken, &identity)
	return &identity, nil
}

// Prime stores identity for sessionToken, skipping the provider on the next lookup.
func (uc *ValidateSession) Prime(ctx context.Context, sessionToken string, identity *domain.Identity) {
	uc.cache.Set(ctx, cacheKey(sessionToken), domain.CachedSession{
		UserID:    identity.UserID,
		Email:     identity.Email,
		SessionID: identity.SessionID,
		ExpiresAt: identity.ExpiresAt,
	})
}

// Invalidate drops any cached identity for sessionToken.
func (uc *ValidateSession) Invalidate(ctx context.Context, sessionToken string) {
	uc.cache.Delete(ctx, cacheKey(sessionToken))
}

// isRejection reports whether the provider definitively refused the token,
// as opposed to being unreachable.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrAuthFailed) ||
		errors.Is(err, domain.ErrSessionInactive) ||
		errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrMissingIdentity)
}
