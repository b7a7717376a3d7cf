package cache

import (
	"context"
	"testing"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestSessionCache_SetAndGet(t *testing.T) {
	c := NewSessionCache(5 * time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sess-1", domain.CachedSession{
		UserID:    "user-1",
		Email:     "test@example.com",
		SessionID: "kratos-sess-1",
	})

	got, found := c.Get(ctx, "sess-1")
	assert.True(t, found)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "test@example.com", got.Email)
	assert.Equal(t, "kratos-sess-1", got.SessionID)
}

func TestSessionCache_NotFound(t *testing.T) {
	c := NewSessionCache(5 * time.Minute)
	defer c.Close()

	got, found := c.Get(context.Background(), "nonexistent")
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestSessionCache_Expiration(t *testing.T) {
	c := NewSessionCache(100 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sess-exp", domain.CachedSession{UserID: "user-1"})

	// Before expiry
	got, found := c.Get(ctx, "sess-exp")
	assert.True(t, found)
	assert.Equal(t, "user-1", got.UserID)

	// After expiry
	time.Sleep(150 * time.Millisecond)
	got, found = c.Get(ctx, "sess-exp")
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestSessionCache_CappedBySessionExpiry(t *testing.T) {
	c := NewSessionCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sess-short", domain.CachedSession{
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(50 * time.Millisecond),
	})

	_, found := c.Get(ctx, "sess-short")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)
	_, found = c.Get(ctx, "sess-short")
	assert.False(t, found)
}

func TestSessionCache_Delete(t *testing.T) {
	c := NewSessionCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sess-1", domain.CachedSession{UserID: "user-1"})
	c.Delete(ctx, "sess-1")

	_, found := c.Get(ctx, "sess-1")
	assert.False(t, found)
}

func TestSessionCache_Cleanup(t *testing.T) {
	c := NewSessionCache(10 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", domain.CachedSession{UserID: "user-a"})
	c.Set(ctx, "b", domain.CachedSession{UserID: "user-b"})
	assert.Equal(t, 2, c.Len())

	time.Sleep(20 * time.Millisecond)
	c.cleanup()
	assert.Equal(t, 0, c.Len())
}

func TestSessionCache_GetReturnsCopy(t *testing.T) {
	c := NewSessionCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sess-1", domain.CachedSession{UserID: "user-1"})
	got, _ := c.Get(ctx, "sess-1")
	got.UserID = "mutated"

	again, _ := c.Get(ctx, "sess-1")
	assert.Equal(t, "user-1", again.UserID)
}

func TestSessionCache_CloseIsIdempotent(t *testing.T) {
	c := NewSessionCache(time.Minute)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
