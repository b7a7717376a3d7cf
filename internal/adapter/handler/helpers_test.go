package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/infrastructure/cache"
	"github.com/atjeff/kratos-echo/internal/infrastructure/token"
	"github.com/atjeff/kratos-echo/internal/usecase"
	"github.com/atjeff/kratos-echo/ui"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// fakeProvider implements the provider ports with a single known account.
type fakeProvider struct {
	mu       sync.Mutex
	email    string
	code     string
	sessions map[string]*domain.Identity
	revoked  []string
	startErr error
	down     bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		email:    "ada@example.com",
		code:     "424242",
		sessions: make(map[string]*domain.Identity),
	}
}

func (p *fakeProvider) StartCodeLogin(_ context.Context, identifier string) (string, error) {
	if p.startErr != nil {
		return "", p.startErr
	}
	if identifier != p.email {
		return "", &domain.ProviderMessageError{Kind: domain.ErrUnknownIdentifier, ID: 4000035, Text: "This account does not exist or has not setup sign in with code."}
	}
	return "flow-1", nil
}

func (p *fakeProvider) CompleteCodeLogin(_ context.Context, flowID, identifier, code string) (*domain.SignInResult, error) {
	if flowID != "flow-1" {
		return nil, domain.ErrFlowExpired
	}
	if code != p.code {
		return nil, &domain.ProviderMessageError{Kind: domain.ErrInvalidCode, ID: 4010008, Text: "The login code is invalid or has already been used. Please try again."}
	}
	identity := &domain.Identity{
		UserID:    "user-1",
		Email:     identifier,
		SessionID: "sess-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	p.mu.Lock()
	p.sessions["ory_st_1"] = identity
	p.mu.Unlock()
	return &domain.SignInResult{Identity: identity, SessionToken: "ory_st_1"}, nil
}

func (p *fakeProvider) ValidateSession(_ context.Context, sessionToken string) (*domain.Identity, error) {
	if p.down {
		return nil, domain.ErrProviderUnavailable
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.sessions[sessionToken]
	if !ok {
		return nil, domain.ErrAuthFailed
	}
	cp := *identity
	return &cp, nil
}

func (p *fakeProvider) RevokeSession(_ context.Context, sessionToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, sessionToken)
	if _, ok := p.sessions[sessionToken]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(p.sessions, sessionToken)
	return nil
}

func (p *fakeProvider) Version(context.Context) (string, error) {
	if p.down {
		return "", domain.ErrProviderUnavailable
	}
	return "v1.3.0", nil
}

type fixture struct {
	e        *echo.Echo
	provider *fakeProvider
	issuer   *token.JWTIssuer
	cookies  CookieConfig
}

var testAttemptKey = []byte("0123456789abcdef0123456789abcdef")

var testCookies = CookieConfig{SessionName: "__session", ClientName: "__client", AttemptName: "__sign_in"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := newFakeProvider()

	issuer, err := token.NewJWTIssuer(token.SessionTokenConfig{TTL: time.Minute})
	require.NoError(t, err)
	sessionCache := cache.NewSessionCache(time.Minute)
	t.Cleanup(func() { _ = sessionCache.Close() })

	validate := usecase.NewValidateSession(provider, sessionCache, logger)
	resolve := usecase.NewResolveSession(validate, issuer, logger)
	signIn := usecase.NewSignIn(provider, token.NewHMACAttemptCodec(testAttemptKey), issuer, validate, logger)
	signOut := usecase.NewSignOut(provider, validate, logger)

	urls := SignInURLs{SignIn: "/sign-in", Verify: "/sign-in/verify", AfterSignIn: "/admin"}
	sessions := NewSessionMiddleware(resolve, testCookies, PathMatcher{"/admin", "/some/random/protected-route/*"}, urls.SignIn, "/sign-out", logger)
	signInH := NewSignInHandler(signIn, testCookies, urls, ui.New(ui.Config{}), logger)
	signOutH := NewSignOutHandler(signOut, testCookies, "/", logger)

	e := echo.New()
	e.Use(sessions.Handle)
	e.GET("/", func(c echo.Context) error {
		if s, ok := SessionFrom(c); ok {
			return c.String(http.StatusOK, "hello "+s.Email)
		}
		return c.String(http.StatusOK, "anonymous")
	})
	e.GET("/admin", func(c echo.Context) error {
		s, err := domain.SessionFromContext(c.Request().Context())
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, "admin "+s.UserID+" "+string(s.Source))
	})
	e.GET("/function-protected", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, RequireSession(urls.SignIn))
	e.POST("/function-protected", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, RequireSession(urls.SignIn))
	e.GET("/some/random/protected-route/*", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET(urls.SignIn, signInH.Show)
	e.POST(urls.SignIn, signInH.Start)
	e.GET(urls.Verify, signInH.ShowCode)
	e.POST(urls.Verify, signInH.Verify)
	e.POST("/sign-out", signOutH.Handle)
	e.GET("/healthz", NewHealthHandler(provider).Handle)

	return &fixture{e: e, provider: provider, issuer: issuer, cookies: testCookies}
}

func (f *fixture) do(t *testing.T, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
