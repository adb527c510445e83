package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// MinSessionSecretLen is the minimum accepted length of SESSION_SECRET in bytes.
const MinSessionSecretLen = 32

// Config holds all configuration for the portal.
type Config struct {
	PortalAddr string `envconfig:"PORTAL_ADDR" default:":8080"`
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile    string `envconfig:"LOG_FILE"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8082"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	Session SessionConfig
	Gate    GateConfig
	Drafts  DraftConfig
	Login   LoginConfig
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret        string `envconfig:"SESSION_SECRET" required:"true"`
	MaxAgeSeconds int    `envconfig:"SESSION_MAX_AGE_SECONDS" default:"604800"`
	CookieName    string `envconfig:"SESSION_COOKIE_NAME" default:"portal_session"`
	Sliding       bool   `envconfig:"SESSION_SLIDING" default:"false"`
	Issuer        string `envconfig:"SESSION_ISSUER" default:"school-portal"`
}

// MaxAge returns the session lifetime.
func (s SessionConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeSeconds) * time.Second
}

// GateConfig lists the protected path prefixes and the sign-in page.
type GateConfig struct {
	ProtectedPrefixes []string `envconfig:"PROTECTED_PREFIXES" default:"/dashboard,/profile,/admin"`
	LoginPath         string   `envconfig:"LOGIN_PATH" default:"/auth/login"`
}

// DraftConfig selects where unsaved permission edits live.
type DraftConfig struct {
	Store     string        `envconfig:"DRAFT_STORE" default:"memory"`
	RedisAddr string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	TTL       time.Duration `envconfig:"DRAFT_TTL" default:"2h"`
}

// LoginConfig throttles sign-in attempts per client IP.
type LoginConfig struct {
	RateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	RateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	cfg.Gate.ProtectedPrefixes = trimList(cfg.Gate.ProtectedPrefixes)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// trimList drops surrounding spaces and empty entries from a comma list.
func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsProduction reports whether the portal runs in production.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) validate() error {
	if len(c.Session.Secret) < MinSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLen)
	}
	if c.Session.MaxAgeSeconds <= 0 {
		return errors.New("SESSION_MAX_AGE_SECONDS must be positive")
	}
	if c.BackendTimeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	if !strings.HasPrefix(c.Gate.LoginPath, "/") {
		return errors.New("LOGIN_PATH must be an absolute path")
	}
	for _, p := range c.Gate.ProtectedPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("protected prefix %q must start with /", p)
		}
	}
	switch c.Drafts.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("DRAFT_STORE must be memory or redis, got %q", c.Drafts.Store)
	}
	if c.Login.RateLimit <= 0 || c.Login.RateWindow <= 0 {
		return errors.New("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	return nil
}
