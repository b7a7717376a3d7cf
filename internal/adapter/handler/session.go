package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SessionContextKey is the echo.Context key holding the *domain.Session.
const SessionContextKey = "kratosecho.session"

// SessionFrom returns the session resolved for this request, if any.
func SessionFrom(c echo.Context) (*domain.Session, bool) {
	s, ok := c.Get(SessionContextKey).(*domain.Session)
	return s, ok && s != nil
}

// PathMatcher reports whether a request path is protected.
type PathMatcher []string

// Match accepts three pattern forms: "/admin" (the path and everything
// below it), "/some/*/route" (path.Match glob) and "/prefix/*" (prefix).
func (m PathMatcher) Match(p string) bool {
	for _, pattern := range m {
		if matchPath(pattern, p) {
			return true
		}
	}
	return false
}

func matchPath(pattern, p string) bool {
	switch {
	case pattern == "":
		return false
	case strings.HasSuffix(pattern, "/*") && !strings.ContainsAny(pattern[:len(pattern)-2], "*?["):
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/")
	case strings.ContainsAny(pattern, "*?["):
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	default:
		pattern = strings.TrimSuffix(pattern, "/")
		return p == pattern || strings.HasPrefix(p, pattern+"/")
	}
}

// SessionMiddleware resolves the session for every request and guards
// protected paths.
type SessionMiddleware struct {
	uc        *usecase.ResolveSession
	cookies   CookieConfig
	protected PathMatcher
	public    PathMatcher
	signInURL string
	logger    *slog.Logger
}

// NewSessionMiddleware creates a new session middleware. The sign-in pages
// and signOutURL are never guarded, whatever protected matches.
func NewSessionMiddleware(uc *usecase.ResolveSession, cookies CookieConfig, protected PathMatcher, signInURL, signOutURL string, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		uc:        uc,
		cookies:   cookies,
		protected: protected,
		public:    PathMatcher{signInURL, signOutURL},
		signInURL: signInURL,
		logger:    logger,
	}
}

func (m *SessionMiddleware) guarded(p string) bool {
	return !m.public.Match(p) && m.protected.Match(p)
}

// Handle is the echo.MiddlewareFunc.
func (m *SessionMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		creds := m.cookies.Credentials(c)

		res, err := m.uc.Execute(ctx, creds)
		switch {
		case err == nil:
			if res.MintedToken != "" {
				m.cookies.SetSession(c, res.MintedToken, res.MintedExpiresAt)
			}
			c.Set(SessionContextKey, res.Session)
			c.SetRequest(req.WithContext(domain.WithSession(ctx, res.Session)))

		case errors.Is(err, domain.ErrSessionNotFound):
			if res != nil && res.ClearClient {
				m.cookies.ClearAll(c)
			} else if creds.SessionToken != "" {
				m.cookies.ClearSession(c)
			}

		default:
			m.logger.WarnContext(ctx, "session resolution failed", "error", err)
			if m.guarded(req.URL.Path) {
				return mapDomainError(err)
			}
		}

		if _, ok := SessionFrom(c); !ok && m.guarded(req.URL.Path) {
			return RedirectToSignIn(c, m.signInURL)
		}
		return next(c)
	}
}

// RequireSession guards a single route or group. Page requests are sent to
// the sign-in page; everything else gets 401.
func RequireSession(signInURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := SessionFrom(c); ok {
				return next(c)
			}
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead:
				return RedirectToSignIn(c, signInURL)
			default:
				return mapDomainError(domain.ErrSessionNotFound)
			}
		}
	}
}
