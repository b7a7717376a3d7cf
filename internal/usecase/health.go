package usecase

import (
	"context"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
)

// CheckProvider polls the identity provider until it answers or ctx ends.
type CheckProvider struct {
	health  domain.ProviderHealth
	initial time.Duration
	max     time.Duration
}

// NewCheckProvider creates a new CheckProvider usecase.
func NewCheckProvider(h domain.ProviderHealth) *CheckProvider {
	return &CheckProvider{health: h, initial: 100 * time.Millisecond, max: 2 * time.Second}
}

// Execute returns the provider version once reachable.
func (uc *CheckProvider) Execute(ctx context.Context) (string, error) {
	delay := uc.initial
	for {
		version, err := uc.health.Version(ctx)
		if err == nil {
			return version, nil
		}

		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(delay):
		}
		delay = min(delay*2, uc.max)
	}
}
