package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSession_CacheHit(t *testing.T) {
	cache := newMockCache()
	cache.Set(context.Background(), cacheKey("token-abc"), domain.CachedSession{
		UserID:    "user-123",
		Email:     "test@example.com",
		SessionID: "sess-123",
	})
	validator := &mockValidator{}

	uc := NewValidateSession(validator, cache, slog.Default())
	identity, err := uc.Execute(context.Background(), "token-abc")

	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.UserID)
	assert.Equal(t, "test@example.com", identity.Email)
	assert.Equal(t, "sess-123", identity.SessionID)
	assert.Zero(t, validator.calls.Load(), "should not call Kratos on cache hit")
}

func TestValidateSession_CacheMiss(t *testing.T) {
	cache := newMockCache()
	validator := &mockValidator{
		identity: &domain.Identity{
			UserID:    "user-456",
			Email:     "new@example.com",
			SessionID: "sess-456",
		},
	}

	uc := NewValidateSession(validator, cache, slog.Default())
	identity, err := uc.Execute(context.Background(), "token-xyz")

	require.NoError(t, err)
	assert.Equal(t, "user-456", identity.UserID)
	assert.Equal(t, "token-xyz", validator.token)

	cached, found := cache.Get(context.Background(), cacheKey("token-xyz"))
	require.True(t, found)
	assert.Equal(t, "user-456", cached.UserID)
	assert.Equal(t, "sess-456", cached.SessionID)

	_, found = cache.Get(context.Background(), "token-xyz")
	assert.False(t, found, "raw token must not be used as cache key")
}

func TestValidateSession_EmptyToken(t *testing.T) {
	validator := &mockValidator{}
	uc := NewValidateSession(validator, newMockCache(), slog.Default())

	_, err := uc.Execute(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
	assert.Zero(t, validator.calls.Load())
}

func TestValidateSession_RejectionEvictsCache(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		evict bool
	}{
		{"auth failed", domain.ErrAuthFailed, true},
		{"inactive", domain.ErrSessionInactive, true},
		{"expired", domain.ErrSessionExpired, true},
		{"missing identity", domain.ErrMissingIdentity, true},
		{"provider down", fmt.Errorf("%w: dial tcp", domain.ErrProviderUnavailable), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMockCache()
			uc := NewValidateSession(&mockValidator{err: tt.err}, cache, slog.Default())

			_, err := uc.Execute(context.Background(), "token-1")
			assert.True(t, errors.Is(err, tt.err))
			if tt.evict {
				assert.Equal(t, []string{cacheKey("token-1")}, cache.deleted)
			} else {
				assert.Empty(t, cache.deleted)
			}
		})
	}
}

func TestValidateSession_ConcurrentCallsShareProviderRequest(t *testing.T) {
	validator := &mockValidator{
		identity: &domain.Identity{UserID: "user-1"},
		delay:    50 * time.Millisecond,
	}
	uc := NewValidateSession(validator, newMockCache(), slog.Default())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := uc.Execute(context.Background(), "token-shared")
			assert.NoError(t, err)
			assert.Equal(t, "user-1", identity.UserID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), validator.calls.Load())
}

func TestValidateSession_PrimeAndInvalidate(t *testing.T) {
	validator := &mockValidator{err: domain.ErrAuthFailed}
	uc := NewValidateSession(validator, newMockCache(), slog.Default())
	ctx := context.Background()

	uc.Prime(ctx, "token-1", &domain.Identity{UserID: "user-1"})
	identity, err := uc.Execute(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)

	uc.Invalidate(ctx, "token-1")
	_, err = uc.Execute(ctx, "token-1")
	assert.True(t, errors.Is(err, domain.ErrAuthFailed))
	assert.Equal(t, int32(1), validator.calls.Load())
}

// gatedValidator blocks until release is closed or its context ends.
type gatedValidator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedValidator) ValidateSession(ctx context.Context, _ string) (*domain.Identity, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return &domain.Identity{UserID: "user-1"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestValidateSession_CancelledCallerDoesNotFailOthers(t *testing.T) {
	validator := &gatedValidator{entered: make(chan struct{}), release: make(chan struct{})}
	uc := NewValidateSession(validator, newMockCache(), slog.Default())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := uc.Execute(ctxA, "token-shared")
		errA <- err
	}()
	<-validator.entered

	type result struct {
		identity *domain.Identity
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		identity, err := uc.Execute(context.Background(), "token-shared")
		resB <- result{identity, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(validator.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "user-1", r.identity.UserID)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
}
