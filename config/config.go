package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultServerSecret is shown on the example admin page when SERVER_SECRET
// is unset.
const DefaultServerSecret = "Echo is awesome"

// Config holds the configuration of the example application.
type Config struct {
	Port           string        `validate:"required,numeric"`
	KratosKey      string        `validate:"required"`
	AppName        string        `validate:"required"`
	ServerSecret   string        `validate:"required"`
	SessionSecret  string        `validate:"omitempty,min=32"`
	SessionTTL     time.Duration `validate:"gt=0"`
	CacheTTL       time.Duration `validate:"gt=0"`
	RedisURL       string        `validate:"omitempty,url"`
	SignInRate     float64       `validate:"gte=0"` // form posts per second and IP; 0 disables
	ProtectedPaths []string      `validate:"dive,startswith=/"`
	SecureCookies  bool
}

// DevIDPConfig holds the configuration of the development identity provider.
type DevIDPConfig struct {
	Port         string        `validate:"required,numeric"`
	PublicURL    string        `validate:"omitempty,url"`
	RedisURL     string        `validate:"omitempty,url"`
	SeedFile     string        `validate:"omitempty,file"`
	FlowTTL      time.Duration `validate:"gt=0"`
	SessionTTL   time.Duration `validate:"gt=0"`
	AutoRegister bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the application configuration from environment variables with
// sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "3000"),
		KratosKey:     getEnv("KRATOS_KEY", "http://127.0.0.1:4433"),
		AppName:       getEnv("APP_NAME", "kratos-echo"),
		ServerSecret:  getEnv("SERVER_SECRET", DefaultServerSecret),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
	}
	cfg.ProtectedPaths = splitList(getEnv("PROTECTED_PATHS", "/admin/*"))

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SecureCookies, err = getBool("SECURE_COOKIES", false); err != nil {
		return nil, err
	}
	if cfg.SignInRate, err = getFloat("SIGN_IN_RATE", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadDevIDP reads the development identity provider configuration.
func LoadDevIDP() (*DevIDPConfig, error) {
	cfg := &DevIDPConfig{
		Port:      getEnv("DEVIDP_PORT", "4433"),
		PublicURL: getEnv("DEVIDP_PUBLIC_URL", ""),
		RedisURL:  getEnv("DEVIDP_REDIS_URL", ""),
		SeedFile:  getEnv("DEVIDP_SEED_FILE", ""),
	}

	var err error
	if cfg.FlowTTL, err = getDuration("DEVIDP_FLOW_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("DEVIDP_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AutoRegister, err = getBool("DEVIDP_AUTO_REGISTER", false); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid devidp configuration: %w", err)
	}
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a fallback value.
// KEY_FILE takes precedence and names a file holding the value.
func getEnv(key, fallback string) string {
	if fileValue := os.Getenv(key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return b, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
