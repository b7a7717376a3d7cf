package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum HS256 key size accepted for session tokens.
const MinSecretLength = 32

// SessionTokenConfig holds session token configuration.
type SessionTokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// sessionClaims represents the JWT claims of the __session cookie.
type sessionClaims struct {
	Email string `json:"email"`
	Sid   string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTIssuer mints and verifies short-lived HS256 session tokens.
// Implements domain.SessionTokenIssuer.
type JWTIssuer struct {
	cfg    SessionTokenConfig
	secret []byte
	parser *jwt.Parser
}

// NewJWTIssuer creates a new JWT issuer. An empty secret is replaced by a
// random per-process key, so tokens do not survive a restart.
func NewJWTIssuer(cfg SessionTokenConfig) (*JWTIssuer, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrTokenGeneration, err)
		}
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", domain.ErrSecretTooShort, MinSecretLength)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTIssuer{
		cfg:    cfg,
		secret: secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// DeriveKey returns a key for another purpose, bound to the session secret.
func (j *JWTIssuer) DeriveKey(label string) []byte {
	m := hmac.New(sha256.New, j.secret)
	m.Write([]byte(label))
	return m.Sum(nil)
}

// Issue generates a signed session token for identity.
func (j *JWTIssuer) Issue(identity *domain.Identity) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, domain.ErrMissingIdentity
	}

	now := time.Now()
	expiresAt := now.Add(j.cfg.TTL)
	claims := sessionClaims{
		Email: identity.Email,
		Sid:   identity.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.Issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if j.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", domain.ErrTokenGeneration, err)
	}
	return signed, expiresAt, nil
}

// Verify parses tokenString and returns the identity it was minted for.
func (j *JWTIssuer) Verify(tokenString string) (*domain.Identity, error) {
	if tokenString == "" {
		return nil, domain.ErrSessionNotFound
	}

	claims := &sessionClaims{}
	_, err := j.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return nil, domain.ErrMissingIdentity
	}

	identity := &domain.Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.Sid,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
