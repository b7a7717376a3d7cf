package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
)

// HMACAttemptCodec signs sign-in attempts using HMAC-SHA256.
// Implements domain.AttemptCodec.
type HMACAttemptCodec struct {
	secret []byte
	now    func() time.Time
}

// NewHMACAttemptCodec creates a new attempt codec.
func NewHMACAttemptCodec(secret []byte) *HMACAttemptCodec {
	return &HMACAttemptCodec{secret: secret, now: time.Now}
}

// Seal encodes the attempt as "<payload>.<mac>", both base64url.
func (c *HMACAttemptCodec) Seal(attempt domain.SignInAttempt) (string, error) {
	if len(c.secret) == 0 {
		return "", domain.ErrSecretTooShort
	}

	payload, err := json.Marshal(attempt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTokenGeneration, err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + c.mac(encoded), nil
}

// Open verifies and decodes a value produced by Seal.
func (c *HMACAttemptCodec) Open(value string) (*domain.SignInAttempt, error) {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok || encoded == "" || sig == "" {
		return nil, domain.ErrAttemptInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(c.mac(encoded))) {
		return nil, domain.ErrAttemptInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAttemptInvalid, err)
	}

	var attempt domain.SignInAttempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAttemptInvalid, err)
	}
	if attempt.FlowID == "" || attempt.Expired(c.now()) {
		return nil, domain.ErrAttemptInvalid
	}
	return &attempt, nil
}

func (c *HMACAttemptCodec) mac(data string) string {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
