package kratosecho

import (
	"context"

	"github.com/atjeff/kratos-echo/internal/adapter/handler"
	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/labstack/echo/v4"
)

// Session is the signed-in user of a request.
type Session = domain.Session

// Identity describes the user behind a session.
type Identity = domain.Identity

// SessionSource tells which credential a session was resolved from.
type SessionSource = domain.SessionSource

// Session sources.
const (
	SourceSessionCookie = domain.SourceSessionCookie
	SourceBearer        = domain.SourceBearer
	SourceClientToken   = domain.SourceClientToken
)

// Errors callers can match with errors.Is.
var (
	ErrSessionNotFound     = domain.ErrSessionNotFound
	ErrSessionExpired      = domain.ErrSessionExpired
	ErrSessionInactive     = domain.ErrSessionInactive
	ErrAuthFailed          = domain.ErrAuthFailed
	ErrMissingIdentity     = domain.ErrMissingIdentity
	ErrTokenGeneration     = domain.ErrTokenGeneration
	ErrTokenInvalid        = domain.ErrTokenInvalid
	ErrSecretTooShort      = domain.ErrSecretTooShort
	ErrProviderUnavailable = domain.ErrProviderUnavailable
	ErrRateLimited         = domain.ErrRateLimited
	ErrInvalidIdentifier   = domain.ErrInvalidIdentifier
	ErrUnknownIdentifier   = domain.ErrUnknownIdentifier
	ErrInvalidCode         = domain.ErrInvalidCode
	ErrFlowExpired         = domain.ErrFlowExpired
	ErrInvalidKey          = domain.ErrInvalidKey
	ErrNotInitialized      = domain.ErrNotInitialized
	ErrAttemptInvalid      = domain.ErrAttemptInvalid
	ErrNoSession           = domain.ErrNoSession
)

// ProviderMessageError carries the provider's message for a rejected sign-in.
type ProviderMessageError = domain.ProviderMessageError

// Middleware resolves the session of every request and redirects anonymous
// visitors of Options.ProtectedPaths to the sign-in page.
func (c *Client) Middleware() echo.MiddlewareFunc {
	return c.sessions.Handle
}

// RequireSession protects a route or group. It needs Middleware upstream.
func (c *Client) RequireSession() echo.MiddlewareFunc {
	return handler.RequireSession(c.opts.SignInURL)
}

// RedirectToSignIn answers with a redirect to the sign-in page that comes
// back to the current URL afterwards.
func (c *Client) RedirectToSignIn(ec echo.Context) error {
	return handler.RedirectToSignIn(ec, c.opts.SignInURL)
}

// CSRF is the CSRF middleware the sign-in and sign-out forms are checked
// with. Apply it to pages that render the user button.
func (c *Client) CSRF() echo.MiddlewareFunc {
	return c.csrf
}

// CSRFToken returns the form token set by CSRF.
func CSRFToken(ec echo.Context) string {
	return handler.CSRFToken(ec)
}

// SessionFrom returns the session Middleware resolved for ec.
func SessionFrom(ec echo.Context) (*Session, bool) {
	return handler.SessionFrom(ec)
}

// SessionFromContext returns the session attached to a request context.
func SessionFromContext(ctx context.Context) (*Session, error) {
	return domain.SessionFromContext(ctx)
}

// MountRoutes registers the sign-in, code and sign-out routes on e. mws run
// before the built-in CSRF check.
func (c *Client) MountRoutes(e *echo.Echo, mws ...echo.MiddlewareFunc) {
	chain := append(append([]echo.MiddlewareFunc{}, mws...), c.csrf)

	post := chain
	if c.limiter != nil {
		post = append(append([]echo.MiddlewareFunc{}, chain...), c.limiter.Middleware())
	}

	signIn := c.opts.SignInURL
	e.GET(signIn, c.signIn.Show, chain...)
	e.POST(signIn, c.signIn.Start, post...)
	e.GET(signIn+"/verify", c.signIn.ShowCode, chain...)
	e.POST(signIn+"/verify", c.signIn.Verify, post...)
	e.POST(c.opts.SignOutURL, c.signOut.Handle, chain...)
}

// HealthHandler reports whether the provider is reachable.
func (c *Client) HealthHandler() echo.HandlerFunc {
	return c.healthH.Handle
}
