package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/atjeff/kratos-echo/internal/domain"
	"github.com/atjeff/kratos-echo/internal/usecase"
	"github.com/atjeff/kratos-echo/ui"

	"github.com/labstack/echo/v4"
)

// CSRFContextKey is where the CSRF middleware leaves the form token.
const CSRFContextKey = "csrf"

// CSRFToken returns the token to embed in forms.
func CSRFToken(c echo.Context) string {
	token, _ := c.Get(CSRFContextKey).(string)
	return token
}

// SignInURLs are the paths the sign-in pages link between.
type SignInURLs struct {
	SignIn      string
	Verify      string
	AfterSignIn string
}

// SignInHandler serves the email and code steps.
type SignInHandler struct {
	uc       *usecase.SignIn
	cookies  CookieConfig
	urls     SignInURLs
	renderer *ui.Renderer
	logger   *slog.Logger
}

// NewSignInHandler creates a new sign-in handler.
func NewSignInHandler(uc *usecase.SignIn, cookies CookieConfig, urls SignInURLs, renderer *ui.Renderer, logger *slog.Logger) *SignInHandler {
	return &SignInHandler{uc: uc, cookies: cookies, urls: urls, renderer: renderer, logger: logger}
}

// target picks the post-auth destination from the request.
func (h *SignInHandler) target(c echo.Context) string {
	for _, name := range []string{ParamRedirectAfterAuth, ParamRedirectURL} {
		if v := c.QueryParam(name); v != "" {
			return SafeRedirect(v, h.urls.AfterSignIn, h.urls.SignIn)
		}
	}
	if v := c.FormValue(ParamRedirectURL); v != "" {
		return SafeRedirect(v, h.urls.AfterSignIn, h.urls.SignIn)
	}
	return ""
}

// Show handles GET on the sign-in page. Signed-in visitors go straight on.
func (h *SignInHandler) Show(c echo.Context) error {
	target := h.target(c)
	if _, ok := SessionFrom(c); ok {
		if target == "" {
			target = h.urls.AfterSignIn
		}
		return c.Redirect(http.StatusFound, target)
	}
	return h.renderIdentifier(c, http.StatusOK, "", target, "")
}

// Start handles the email step.
func (h *SignInHandler) Start(c echo.Context) error {
	identifier := c.FormValue("identifier")
	target := h.target(c)

	started, err := h.uc.Start(c.Request().Context(), identifier, target)
	if err != nil {
		return h.renderIdentifier(c, statusFor(err), identifier, target, domain.MessageText(err))
	}

	h.cookies.SetAttempt(c, started.Attempt, started.Expires)
	return c.Redirect(http.StatusSeeOther, h.urls.Verify)
}

// ShowCode handles GET on the code step.
func (h *SignInHandler) ShowCode(c echo.Context) error {
	attempt, err := h.uc.Attempt(h.cookies.value(c, h.cookies.AttemptName))
	if err != nil {
		h.cookies.ClearAttempt(c)
		return c.Redirect(http.StatusSeeOther, h.urls.SignIn)
	}
	return h.renderCode(c, http.StatusOK, attempt.Identifier, "")
}

// Verify handles the code step.
func (h *SignInHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	sealed := h.cookies.value(c, h.cookies.AttemptName)

	code := c.FormValue("codeInput-0")
	if code == "" {
		code = c.FormValue("code")
	}

	done, err := h.uc.Complete(ctx, sealed, code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAttemptInvalid), errors.Is(err, domain.ErrFlowExpired):
			h.cookies.ClearAttempt(c)
			identifier, target := "", ""
			if attempt, openErr := h.uc.Attempt(sealed); openErr == nil {
				identifier, target = attempt.Identifier, attempt.RedirectTo
			}
			return h.renderIdentifier(c, statusFor(err), identifier, target, domain.MessageText(err))
		default:
			attempt, openErr := h.uc.Attempt(sealed)
			if openErr != nil {
				h.cookies.ClearAttempt(c)
				return h.renderIdentifier(c, statusFor(openErr), "", "", domain.MessageText(openErr))
			}
			return h.renderCode(c, statusFor(err), attempt.Identifier, domain.MessageText(err))
		}
	}

	h.cookies.ClearAttempt(c)
	h.cookies.SetClient(c, done.ClientToken, done.Identity.ExpiresAt)
	h.cookies.SetSession(c, done.SessionToken, done.SessionExpiresAt)

	target := SafeRedirect(done.RedirectTo, h.urls.AfterSignIn, h.urls.SignIn)
	return c.Redirect(http.StatusSeeOther, target)
}

// statusFor picks the status a re-rendered form is served with.
func statusFor(err error) int {
	var msgErr *domain.ProviderMessageError
	if errors.As(err, &msgErr) {
		return http.StatusUnprocessableEntity
	}
	return mapDomainError(err).Code
}

func (h *SignInHandler) renderIdentifier(c echo.Context, status int, identifier, target, message string) error {
	return h.render(c, status, ui.PageSignIn, ui.SignInPage{
		Action:      h.urls.SignIn,
		CSRF:        CSRFToken(c),
		Identifier:  identifier,
		Error:       message,
		RedirectURL: target,
	})
}

func (h *SignInHandler) renderCode(c echo.Context, status int, identifier, message string) error {
	return h.render(c, status, ui.PageSignInCode, ui.SignInPage{
		Title:      "Check your email",
		Action:     h.urls.Verify,
		CSRF:       CSRFToken(c),
		Identifier: identifier,
		Error:      message,
		RestartURL: h.urls.SignIn,
	})
}

func (h *SignInHandler) render(c echo.Context, status int, page string, data ui.SignInPage) error {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page, data, c); err != nil {
		h.logger.ErrorContext(c.Request().Context(), "failed to render sign-in page", "page", page, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.HTMLBlob(status, buf.Bytes())
}
