package kratosecho

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"golang.org/x/time/rate"
)

// SessionCache stores validated provider sessions between requests.
type SessionCache = domain.SessionCache

// Options configures a Client. The zero value of any field means its default.
type Options struct {
	// AppName is shown on the sign-in page.
	AppName string

	SignInURL       string // default "/sign-in"
	SignOutURL      string // default "/sign-out"
	AfterSignInURL  string // default "/"
	AfterSignOutURL string // default "/"

	SessionCookieName string // default "__session"
	ClientCookieName  string // default "__client"
	SignInCookieName  string // default "__sign_in"
	CookieDomain      string
	SecureCookies     bool

	// SessionTTL is the lifetime of the __session token. Default 60s.
	SessionTTL time.Duration
	// SessionSecret signs session tokens and sign-in attempts. At least 32
	// bytes; empty generates a per-process secret.
	SessionSecret   string
	SessionIssuer   string
	SessionAudience string

	// ProtectedPaths need a session. See handler.PathMatcher for the
	// accepted pattern forms.
	ProtectedPaths []string

	// CacheTTL bounds how long a validated provider session is trusted
	// without asking the provider again. Default 5m.
	CacheTTL time.Duration
	// Cache overrides the in-process cache, e.g. with a Redis cache.
	Cache SessionCache
	// RedisURL selects the Redis cache when Cache is nil.
	RedisURL string

	// SignInRate limits sign-in form posts per client IP. Zero disables it.
	SignInRate  rate.Limit
	SignInBurst int

	HTTPClient *http.Client
	// Timeout bounds every provider call. Default 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultOptions returns the options Initialize uses when given nil.
func DefaultOptions() *Options {
	return &Options{
		AppName:           "your account",
		SignInURL:         "/sign-in",
		SignOutURL:        "/sign-out",
		AfterSignInURL:    "/",
		AfterSignOutURL:   "/",
		SessionCookieName: "__session",
		ClientCookieName:  "__client",
		SignInCookieName:  "__sign_in",
		SessionTTL:        60 * time.Second,
		SessionIssuer:     "kratos-echo",
		CacheTTL:          5 * time.Minute,
		SignInBurst:       10,
		Timeout:           5 * time.Second,
	}
}

// withDefaults returns a copy of o with unset fields filled in.
func (o *Options) withDefaults() Options {
	d := DefaultOptions()
	if o == nil {
		d.Logger = slog.Default()
		return *d
	}

	out := *o
	setString(&out.AppName, d.AppName)
	setString(&out.SignInURL, d.SignInURL)
	setString(&out.SignOutURL, d.SignOutURL)
	setString(&out.AfterSignInURL, d.AfterSignInURL)
	setString(&out.AfterSignOutURL, d.AfterSignOutURL)
	setString(&out.SessionCookieName, d.SessionCookieName)
	setString(&out.ClientCookieName, d.ClientCookieName)
	setString(&out.SignInCookieName, d.SignInCookieName)
	setString(&out.SessionIssuer, d.SessionIssuer)
	setDuration(&out.SessionTTL, d.SessionTTL)
	setDuration(&out.CacheTTL, d.CacheTTL)
	setDuration(&out.Timeout, d.Timeout)
	if out.SignInBurst <= 0 {
		out.SignInBurst = d.SignInBurst
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	out.ProtectedPaths = append([]string(nil), o.ProtectedPaths...)
	return out
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
