// Package app is an example Echo application guarded by kratosecho.
package app

import (
	"embed"
	"log/slog"
	"net/http"

	kratosecho "github.com/atjeff/kratos-echo"
	"github.com/atjeff/kratos-echo/internal/metrics"
	appmiddleware "github.com/atjeff/kratos-echo/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names registered on the client's renderer.
const (
	PageHome      = "home"
	PageAdmin     = "admin"
	PageProfile   = "profile"
	PageProtected = "protected"
)

// Config configures the example application.
type Config struct {
	AppName      string
	ServerSecret string
	// HSTS turns on Strict-Transport-Security.
	HSTS bool
	// Middleware runs before everything else, e.g. tracing and request logs.
	Middleware []echo.MiddlewareFunc
	Logger     *slog.Logger
}

type pageData struct {
	Title        string
	AppName      string
	Session      *kratosecho.Session
	CSRF         string
	ServerSecret string
	Path         string
}

type server struct {
	client *kratosecho.Client
	cfg    Config
}

// New builds the application around client.
func New(client *kratosecho.Client, cfg Config) (*echo.Echo, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = client.Options().AppName
	}

	renderer := client.Renderer()
	for _, page := range []string{PageHome, PageAdmin, PageProfile, PageProtected} {
		if err := renderer.AddPage(page, templatesFS, "templates/layout.html", "templates/"+page+".html"); err != nil {
			return nil, err
		}
	}

	s := &server{client: client, cfg: cfg}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	e.Use(cfg.Middleware...)
	e.Use(middleware.Recover())
	e.Use(appmiddleware.SecurityHeaders(appmiddleware.SecurityHeadersConfig{HSTS: cfg.HSTS}))
	e.Use(client.Middleware())

	client.MountRoutes(e)

	csrf := client.CSRF()
	e.GET("/", s.home, csrf)
	e.GET("/admin", s.admin, csrf)
	e.GET("/admin/profile", s.profile, csrf)
	e.GET("/some/random/protected-route/*", s.protected, client.RequireSession(), csrf)

	e.GET("/api/me", s.me, client.RequireSession())
	e.GET("/healthz", client.HealthHandler())
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return e, nil
}

func (s *server) page(c echo.Context, name, title string) error {
	session, _ := kratosecho.SessionFrom(c)
	return c.Render(http.StatusOK, name, pageData{
		Title:        title,
		AppName:      s.cfg.AppName,
		Session:      session,
		CSRF:         kratosecho.CSRFToken(c),
		ServerSecret: s.cfg.ServerSecret,
		Path:         c.Request().URL.Path,
	})
}

func (s *server) home(c echo.Context) error {
	return s.page(c, PageHome, "Home")
}

func (s *server) admin(c echo.Context) error {
	return s.page(c, PageAdmin, "Admin")
}

func (s *server) profile(c echo.Context) error {
	return s.page(c, PageProfile, "Profile")
}

func (s *server) protected(c echo.Context) error {
	return s.page(c, PageProtected, "Protected")
}

type meResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
}

func (s *server) me(c echo.Context) error {
	session, err := kratosecho.SessionFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return c.JSON(http.StatusOK, meResponse{
		UserID:    session.UserID,
		Email:     session.Email,
		SessionID: session.SessionID,
		Source:    string(session.Source),
	})
}
