package devidp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
)

// TestCode is the fixed one-time code for test identifiers.
const TestCode = "424242"

// IsTestIdentifier reports whether email uses a "+..._test" subaddress,
// e.g. tester+clerk_test@example.com. Such addresses always get TestCode.
func IsTestIdentifier(email string) bool {
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	_, sub, ok := strings.Cut(local, "+")
	return ok && strings.HasSuffix(sub, "_test")
}

// generateCode returns the code to send to identifier.
func generateCode(identifier string) (string, error) {
	if IsTestIdentifier(identifier) {
		return TestCode, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Courier delivers login codes.
type Courier interface {
	SendLoginCode(ctx context.Context, to, code string) error
}

// LogCourier writes codes to the log instead of sending mail.
type LogCourier struct {
	logger *slog.Logger
}

// NewLogCourier creates a courier that logs every code.
func NewLogCourier(logger *slog.Logger) *LogCourier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCourier{logger: logger}
}

func (c *LogCourier) SendLoginCode(ctx context.Context, to, code string) error {
	c.logger.InfoContext(ctx, "login code issued", "to", to, "code", code)
	return nil
}

// MemoryCourier records the last code per recipient.
type MemoryCourier struct {
	mu   sync.Mutex
	sent map[string]string
}

// NewMemoryCourier creates an empty recording courier.
func NewMemoryCourier() *MemoryCourier {
	return &MemoryCourier{sent: make(map[string]string)}
}

func (c *MemoryCourier) SendLoginCode(_ context.Context, to, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[to] = code
	return nil
}

// LastCode returns the most recent code sent to recipient.
func (c *MemoryCourier) LastCode(to string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.sent[to]
	return code, ok
}
