package handler

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// Query parameters the sign-in page reads.
const (
	ParamRedirectURL       = "redirectUrl"
	ParamRedirectAfterAuth = "redirectAfterAuth"
)

// SafeRedirect returns target when it is a same-origin path, otherwise
// fallback. Targets pointing at exclude (the sign-in page) are refused.
func SafeRedirect(target, fallback, exclude string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	if exclude != "" && path.Clean(u.Path) == path.Clean(exclude) {
		return fallback
	}
	return u.RequestURI()
}

// SignInLocation builds <signInURL>?redirectUrl=<target>. Slashes in target
// stay readable.
func SignInLocation(signInURL, target string) string {
	if target == "" || target == "/" {
		return signInURL
	}
	sep := "?"
	if strings.Contains(signInURL, "?") {
		sep = "&"
	}
	escaped := strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")
	return signInURL + sep + ParamRedirectURL + "=" + escaped
}

// RedirectToSignIn sends the visitor to signInURL, remembering where they
// were going.
func RedirectToSignIn(c echo.Context, signInURL string) error {
	return c.Redirect(http.StatusTemporaryRedirect, SignInLocation(signInURL, c.Request().URL.RequestURI()))
}
