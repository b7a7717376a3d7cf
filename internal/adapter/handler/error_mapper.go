package handler

import (
	"errors"
	"net/http"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/labstack/echo/v4"
)

// mapDomainError converts a domain error into an appropriate echo.HTTPError.
func mapDomainError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAuthFailed),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrSessionInactive),
		errors.Is(err, domain.ErrMissingIdentity),
		errors.Is(err, domain.ErrTokenInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

	case errors.Is(err, domain.ErrInvalidIdentifier),
		errors.Is(err, domain.ErrUnknownIdentifier),
		errors.Is(err, domain.ErrInvalidCode):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, domain.MessageText(err))

	case errors.Is(err, domain.ErrFlowExpired),
		errors.Is(err, domain.ErrAttemptInvalid):
		return echo.NewHTTPError(http.StatusGone, domain.MessageText(err))

	case errors.Is(err, domain.ErrProviderUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "identity provider unavailable")

	case errors.Is(err, domain.ErrTokenGeneration),
		errors.Is(err, domain.ErrSecretTooShort):
		return echo.NewHTTPError(http.StatusInternalServerError, "token generation error")

	case errors.Is(err, domain.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
