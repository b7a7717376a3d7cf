package handler

import (
	"log/slog"
	"net/http"

	"github.com/atjeff/kratos-echo/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SignOutHandler ends the session.
type SignOutHandler struct {
	uc           *usecase.SignOut
	cookies      CookieConfig
	afterSignOut string
	logger       *slog.Logger
}

// NewSignOutHandler creates a new sign-out handler.
func NewSignOutHandler(uc *usecase.SignOut, cookies CookieConfig, afterSignOut string, logger *slog.Logger) *SignOutHandler {
	return &SignOutHandler{uc: uc, cookies: cookies, afterSignOut: afterSignOut, logger: logger}
}

// Handle revokes the provider session and clears the cookies. The cookies
// are cleared even when the provider cannot be reached.
func (h *SignOutHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.uc.Execute(ctx, h.cookies.value(c, h.cookies.ClientName)); err != nil {
		h.logger.WarnContext(ctx, "sign-out could not revoke provider session", "error", err)
	}
	if s, ok := SessionFrom(c); ok {
		h.logger.InfoContext(ctx, "user signed out", "user_id", s.UserID)
	}

	h.cookies.ClearAll(c)
	return c.Redirect(http.StatusSeeOther, h.afterSignOut)
}
