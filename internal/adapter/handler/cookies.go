package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/atjeff/kratos-echo/internal/usecase"

	"github.com/labstack/echo/v4"
)

// CookieConfig names and scopes the cookies the handlers write.
type CookieConfig struct {
	SessionName string // short-lived session token
	ClientName  string // provider session token
	AttemptName string // sealed sign-in attempt
	Path        string
	Domain      string
	Secure      bool
}

func (cc CookieConfig) cookie(name, value string, expires time.Time) *http.Cookie {
	path := cc.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cc.Domain,
		Expires:  expires,
		Secure:   cc.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (cc CookieConfig) clear(c echo.Context, name string) {
	ck := cc.cookie(name, "", time.Unix(0, 0))
	ck.MaxAge = -1
	c.SetCookie(ck)
}

// SetSession writes the short-lived session token.
func (cc CookieConfig) SetSession(c echo.Context, token string, expires time.Time) {
	c.SetCookie(cc.cookie(cc.SessionName, token, expires))
}

// SetClient writes the provider session token.
func (cc CookieConfig) SetClient(c echo.Context, token string, expires time.Time) {
	c.SetCookie(cc.cookie(cc.ClientName, token, expires))
}

// SetAttempt writes the sealed sign-in attempt.
func (cc CookieConfig) SetAttempt(c echo.Context, sealed string, expires time.Time) {
	c.SetCookie(cc.cookie(cc.AttemptName, sealed, expires))
}

// ClearSession removes the session token cookie.
func (cc CookieConfig) ClearSession(c echo.Context) { cc.clear(c, cc.SessionName) }

// ClearAttempt removes the sign-in attempt cookie.
func (cc CookieConfig) ClearAttempt(c echo.Context) { cc.clear(c, cc.AttemptName) }

// ClearAll removes the session and client cookies.
func (cc CookieConfig) ClearAll(c echo.Context) {
	cc.clear(c, cc.SessionName)
	cc.clear(c, cc.ClientName)
}

func (cc CookieConfig) value(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// Credentials collects what the request presented.
func (cc CookieConfig) Credentials(c echo.Context) usecase.Credentials {
	creds := usecase.Credentials{
		SessionToken: cc.value(c, cc.SessionName),
		ClientToken:  cc.value(c, cc.ClientName),
	}
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		creds.BearerToken = strings.TrimSpace(auth[7:])
	}
	return creds
}
