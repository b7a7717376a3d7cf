// Package kratosecho wires Ory Kratos into Echo: a provider client with
// session middleware, email code sign-in pages and a store that tells the
// application when the client is ready.
//
//	client, err := kratosecho.Initialize(ctx, os.Getenv("KRATOS_KEY"), nil)
//	e.Use(client.Middleware())
//	client.MountRoutes(e)
package kratosecho

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/atjeff/kratos-echo/internal/adapter/gateway"
	"github.com/atjeff/kratos-echo/internal/adapter/handler"
	"github.com/atjeff/kratos-echo/internal/infrastructure/cache"
	"github.com/atjeff/kratos-echo/internal/infrastructure/token"
	"github.com/atjeff/kratos-echo/internal/metrics"
	"github.com/atjeff/kratos-echo/internal/usecase"
	apimw "github.com/atjeff/kratos-echo/middleware"
	"github.com/atjeff/kratos-echo/ui"

	kratos "github.com/ory/kratos-client-go"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Client is an initialized Kratos integration.
type Client struct {
	key     *Key
	opts    Options
	logger  *slog.Logger
	gateway *gateway.KratosGateway
	closers []io.Closer

	health   *usecase.CheckProvider
	renderer *ui.Renderer
	csrf     echo.MiddlewareFunc
	limiter  *apimw.RateLimiter

	sessions *handler.SessionMiddleware
	signIn   *handler.SignInHandler
	signOut  *handler.SignOutHandler
	healthH  *handler.HealthHandler
}

// NewClient builds a client for key without contacting the provider. A nil
// opts means DefaultOptions().
func NewClient(key string, opts *Options) (*Client, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	logger := o.Logger.With("component", "kratos-echo")

	c := &Client{key: k, opts: o, logger: logger}
	c.gateway = gateway.NewKratosGateway(k.FrontendAPI, o.HTTPClient, o.Timeout)

	issuer, err := token.NewJWTIssuer(token.SessionTokenConfig{
		Secret:   o.SessionSecret,
		Issuer:   o.SessionIssuer,
		Audience: o.SessionAudience,
		TTL:      o.SessionTTL,
	})
	if err != nil {
		return nil, err
	}

	sessionCache, err := c.buildCache()
	if err != nil {
		return nil, err
	}

	validate := usecase.NewValidateSession(c.gateway, sessionCache, logger)
	resolve := usecase.NewResolveSession(validate, issuer, logger)
	signIn := usecase.NewSignIn(c.gateway, token.NewHMACAttemptCodec(issuer.DeriveKey("sign-in-attempt")), issuer, validate, logger)
	signOut := usecase.NewSignOut(c.gateway, validate, logger)
	c.health = usecase.NewCheckProvider(c.gateway)

	cookies := handler.CookieConfig{
		SessionName: o.SessionCookieName,
		ClientName:  o.ClientCookieName,
		AttemptName: o.SignInCookieName,
		Domain:      o.CookieDomain,
		Secure:      o.SecureCookies,
	}
	urls := handler.SignInURLs{
		SignIn:      o.SignInURL,
		Verify:      o.SignInURL + "/verify",
		AfterSignIn: o.AfterSignInURL,
	}

	c.renderer = ui.New(ui.Config{
		AppName:    o.AppName,
		SignInURL:  o.SignInURL,
		SignOutURL: o.SignOutURL,
	})
	c.csrf = middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:_csrf,header:" + echo.HeaderXCSRFToken,
		ContextKey:     handler.CSRFContextKey,
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieDomain:   o.CookieDomain,
		CookieSecure:   o.SecureCookies,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
	if o.SignInRate > 0 {
		c.limiter = apimw.NewRateLimiter(o.SignInRate, o.SignInBurst,
			apimw.WithOnLimited(func(ec echo.Context) { metrics.RecordRateLimited(ec.Path()) }))
	}

	c.sessions = handler.NewSessionMiddleware(resolve, cookies, handler.PathMatcher(o.ProtectedPaths), o.SignInURL, o.SignOutURL, logger)
	c.signIn = handler.NewSignInHandler(signIn, cookies, urls, c.renderer, logger)
	c.signOut = handler.NewSignOutHandler(signOut, cookies, o.AfterSignOutURL, logger)
	c.healthH = handler.NewHealthHandler(c.gateway)

	return c, nil
}

func (c *Client) buildCache() (SessionCache, error) {
	switch {
	case c.opts.Cache != nil:
		return c.opts.Cache, nil
	case c.opts.RedisURL != "":
		rc, err := cache.NewRedisSessionCacheWithURL(c.opts.RedisURL, c.opts.CacheTTL, c.logger)
		if err != nil {
			return nil, fmt.Errorf("kratosecho: redis cache: %w", err)
		}
		c.closers = append(c.closers, rc)
		return rc, nil
	default:
		mc := cache.NewSessionCache(c.opts.CacheTTL)
		c.closers = append(c.closers, mc)
		return mc, nil
	}
}

// Load waits until the provider answers, retrying with backoff until ctx
// ends. It returns the provider version.
func (c *Client) Load(ctx context.Context) (string, error) {
	version, err := c.health.Execute(ctx)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "identity provider ready", "url", c.key.FrontendAPI, "version", version)
	return version, nil
}

// Initialize builds a client, waits for the provider and publishes the
// client on DefaultStore. A nil opts means DefaultOptions().
func Initialize(ctx context.Context, key string, opts *Options) (*Client, error) {
	return InitializeStore(ctx, DefaultStore, key, opts)
}

// InitializeStore is Initialize with a caller-owned store.
func InitializeStore(ctx context.Context, store *Store, key string, opts *Options) (*Client, error) {
	c, err := NewClient(key, opts)
	if err != nil {
		return nil, err
	}
	if _, err := c.Load(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	store.Set(c)
	return c, nil
}

// API exposes the Kratos SDK client.
func (c *Client) API() *kratos.APIClient {
	return c.gateway.API()
}

// Key returns the parsed provider key.
func (c *Client) Key() Key {
	return *c.key
}

// Options returns the effective options.
func (c *Client) Options() Options {
	return c.opts
}

// Renderer is the echo.Renderer for the built-in pages; applications add
// their own pages to it.
func (c *Client) Renderer() *ui.Renderer {
	return c.renderer
}

// Close stops background work and releases the cache.
func (c *Client) Close() error {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
