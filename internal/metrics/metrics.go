// Package metrics provides Prometheus metrics for kratos-echo.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignInTotal counts sign-in steps by outcome.
	SignInTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kratos_echo",
			Name:      "sign_in_total",
			Help:      "Total number of sign-in steps",
		},
		[]string{"step", "outcome"},
	)

	// SessionResolutionsTotal counts request session lookups by credential source.
	SessionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kratos_echo",
			Name:      "session_resolutions_total",
			Help:      "Total number of request session resolutions",
		},
		[]string{"source", "outcome"},
	)

	// ProviderCallDuration measures identity provider calls.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kratos_echo",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of identity provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// RateLimitedTotal counts requests rejected by a rate limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kratos_echo",
			Name:      "rate_limited_total",
			Help:      "Total number of rate limited requests",
		},
		[]string{"route"},
	)
)

// Outcome reduces err to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUnknownIdentifier):
		return "unknown_identifier"
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrFlowExpired), errors.Is(err, domain.ErrAttemptInvalid):
		return "expired"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "anonymous"
	case errors.Is(err, domain.ErrSessionExpired):
		return "expired"
	default:
		return "rejected"
	}
}

// RecordSignIn records a sign-in step.
func RecordSignIn(step string, err error) {
	SignInTotal.WithLabelValues(step, Outcome(err)).Inc()
}

// RecordSessionResolution records a session lookup.
func RecordSessionResolution(source domain.SessionSource, err error) {
	SessionResolutionsTotal.WithLabelValues(string(source), Outcome(err)).Inc()
}

// ObserveProviderCall records the duration of an identity provider call.
func ObserveProviderCall(operation string, start time.Time, err error) {
	ProviderCallDuration.WithLabelValues(operation, Outcome(err)).Observe(time.Since(start).Seconds())
}

// RecordRateLimited records a rejected request.
func RecordRateLimited(route string) {
	RateLimitedTotal.WithLabelValues(route).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
