package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/infrastructure/cache"
	"github.com/atjeff/kratos-echo/internal/infrastructure/token"
	"github.com/atjeff/kratos-echo/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMiddleware_ProtectedPaths(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path     string
		location string
	}{
		{"/admin", "/sign-in?redirectUrl=/admin"},
		{"/admin/profile", "/sign-in?redirectUrl=/admin/profile"},
		{"/some/random/protected-route/foo", "/sign-in?redirectUrl=/some/random/protected-route/foo"},
		{"/function-protected", "/sign-in?redirectUrl=/function-protected"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestSessionMiddleware_PublicPath(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionMiddleware_RequireSessionAPI(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/function-protected", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddleware_BearerToken(t *testing.T) {
	f := newFixture(t)

	tok, _, err := f.issuer.Issue(&domain.Identity{UserID: "user-9", Email: "bearer@example.com"})
	require.NoError(t, err)

	req := newRequest(http.MethodGet, "/admin")
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := serve(f, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin user-9 bearer", rec.Body.String())
}

func TestSessionMiddleware_ClientTokenMintsSession(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["ory_st_kept"] = &domain.Identity{UserID: "user-2", Email: "kept@example.com", SessionID: "s-2", ExpiresAt: time.Now().Add(time.Hour)}

	rec := f.do(t, http.MethodGet, "/admin", nil, &http.Cookie{Name: "__client", Value: "ory_st_kept"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin user-2 client_token", rec.Body.String())

	minted := responseCookie(rec, "__session")
	require.NotNil(t, minted)
	identity, err := f.issuer.Verify(minted.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-2", identity.UserID)
	assert.Equal(t, "s-2", identity.SessionID)
}

func TestSessionMiddleware_InvalidClientClearsCookies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", nil,
		&http.Cookie{Name: "__client", Value: "ory_st_gone"},
		&http.Cookie{Name: "__session", Value: "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	for _, name := range []string{"__client", "__session"} {
		ck := responseCookie(rec, name)
		require.NotNil(t, ck, name)
		assert.Less(t, ck.MaxAge, 0)
	}
}

func TestSessionMiddleware_StaleSessionCookieCleared(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", nil, &http.Cookie{Name: "__session", Value: "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := responseCookie(rec, "__session")
	require.NotNil(t, ck)
	assert.Less(t, ck.MaxAge, 0)
	assert.Nil(t, responseCookie(rec, "__client"))
}

func TestSessionMiddleware_ProviderDown(t *testing.T) {
	f := newFixture(t)
	f.provider.down = true
	client := &http.Cookie{Name: "__client", Value: "ory_st_any"}

	rec := f.do(t, http.MethodGet, "/admin", nil, client)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// public pages stay reachable and keep the client cookie
	rec = f.do(t, http.MethodGet, "/", nil, client)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, responseCookie(rec, "__client"))

	rec = f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestSessionMiddleware_SignInPagesStayPublic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := token.NewJWTIssuer(token.SessionTokenConfig{TTL: time.Minute})
	require.NoError(t, err)
	sessionCache := cache.NewSessionCache(time.Minute)
	t.Cleanup(func() { _ = sessionCache.Close() })
	resolve := usecase.NewResolveSession(usecase.NewValidateSession(newFakeProvider(), sessionCache, logger), issuer, logger)

	sessions := NewSessionMiddleware(resolve, testCookies, PathMatcher{"/*"}, "/sign-in", "/sign-out", logger)
	e := echo.New()
	e.Use(sessions.Handle)
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/sign-in", ok)
	e.GET("/sign-in/verify", ok)
	e.POST("/sign-out", ok)
	e.GET("/admin", ok)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/sign-in", http.StatusOK},
		{http.MethodGet, "/sign-in/verify", http.StatusOK},
		{http.MethodPost, "/sign-out", http.StatusOK},
		{http.MethodGet, "/admin", http.StatusTemporaryRedirect},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","provider":"v1.3.0"}`, rec.Body.String())
}

func TestPathMatcher(t *testing.T) {
	m := PathMatcher{"/admin", "/some/*/route", "/api/private/*", "/exact/"}

	tests := []struct {
		path string
		want bool
	}{
		{"/admin", true},
		{"/admin/profile", true},
		{"/administrator", false},
		{"/some/random/route", true},
		{"/some/random/route/deeper", false},
		{"/api/private", true},
		{"/api/private/x/y", true},
		{"/api/public", false},
		{"/exact", true},
		{"/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.path), tt.path)
	}

	assert.True(t, PathMatcher{"/"}.Match("/anything"))
	assert.False(t, PathMatcher{""}.Match("/"))
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"session not found", domain.ErrSessionNotFound, http.StatusUnauthorized},
		{"auth failed", domain.ErrAuthFailed, http.StatusUnauthorized},
		{"session expired", domain.ErrSessionExpired, http.StatusUnauthorized},
		{"session inactive", domain.ErrSessionInactive, http.StatusUnauthorized},
		{"missing identity", domain.ErrMissingIdentity, http.StatusUnauthorized},
		{"token invalid", domain.ErrTokenInvalid, http.StatusUnauthorized},
		{"unknown identifier", domain.ErrUnknownIdentifier, http.StatusUnprocessableEntity},
		{"invalid code", domain.ErrInvalidCode, http.StatusUnprocessableEntity},
		{"flow expired", domain.ErrFlowExpired, http.StatusGone},
		{"attempt invalid", domain.ErrAttemptInvalid, http.StatusGone},
		{"provider unavailable", domain.ErrProviderUnavailable, http.StatusBadGateway},
		{"token generation", domain.ErrTokenGeneration, http.StatusInternalServerError},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown error", errors.New("something unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := mapDomainError(tt.err)
			assert.Equal(t, tt.wantCode, httpErr.Code)
		})
	}
}

func TestMapDomainError_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", domain.ErrAuthFailed)
	assert.Equal(t, http.StatusUnauthorized, mapDomainError(wrapped).Code)

	msgErr := &domain.ProviderMessageError{Kind: domain.ErrInvalidCode, Text: "nope"}
	httpErr := mapDomainError(fmt.Errorf("outer: %w", msgErr))
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Code)
	assert.Equal(t, "nope", httpErr.Message)
}
