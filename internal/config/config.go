// Package config loads and validates process configuration from the
// environment. Anything the authentication core consumes arrives here already
// checked, so a bad deployment fails at startup rather than per-request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the validated process configuration.
type Config struct {
	Addr        string
	PostgresDSN string

	TokenSecret   string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration

	RateWindow      time.Duration
	RateMaxAttempts uint
	RateLockout     time.Duration
	RateMaxKeys     int

	GateSlots int

	ReaperInterval time.Duration
	ReaperIdle     time.Duration

	AuditBuffer   int
	AuditExtraMax int
	TrustProxy    bool

	ThrottlePerSecond int
	ThrottleBurst     int
}

// Load reads AUTHGATE_* environment variables, applies defaults, and rejects
// configurations the service cannot run with.
func Load() (Config, error) {
	cfg := Config{
		Addr:              envString("AUTHGATE_ADDR", ":8080"),
		PostgresDSN:       strings.TrimSpace(os.Getenv("AUTHGATE_PG_DSN")),
		TokenSecret:       strings.TrimSpace(os.Getenv("AUTHGATE_TOKEN_SECRET")),
		TokenIssuer:       envString("AUTHGATE_TOKEN_ISSUER", "authgate"),
		TokenAudience:     envString("AUTHGATE_TOKEN_AUDIENCE", "authgate"),
		TokenTTL:          envDuration("AUTHGATE_TOKEN_TTL", 12*time.Hour),
		RateWindow:        envDuration("AUTHGATE_RATE_WINDOW", 10*time.Minute),
		RateMaxAttempts:   uint(envInt("AUTHGATE_RATE_MAX_ATTEMPTS", 8)),
		RateLockout:       envDuration("AUTHGATE_RATE_LOCKOUT", 15*time.Minute),
		RateMaxKeys:       envInt("AUTHGATE_RATE_MAX_KEYS", 50000),
		GateSlots:         envInt("AUTHGATE_HASH_SLOTS", 8),
		ReaperInterval:    envDuration("AUTHGATE_REAPER_INTERVAL", time.Minute),
		ReaperIdle:        envDuration("AUTHGATE_REAPER_IDLE", time.Hour),
		AuditBuffer:       envInt("AUTHGATE_AUDIT_BUFFER", 256),
		AuditExtraMax:     envInt("AUTHGATE_AUDIT_EXTRA_MAX", 2048),
		TrustProxy:        envBool("AUTHGATE_TRUST_PROXY", false),
		ThrottlePerSecond: envInt("AUTHGATE_THROTTLE_RPS", 10),
		ThrottleBurst:     envInt("AUTHGATE_THROTTLE_BURST", 20),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TokenSecret == "" {
		return errors.New("config: AUTHGATE_TOKEN_SECRET is required")
	}
	if len(c.TokenSecret) < 32 {
		return errors.New("config: AUTHGATE_TOKEN_SECRET must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: token TTL must be positive")
	}
	if c.RateMaxAttempts == 0 || c.RateWindow <= 0 || c.RateLockout <= 0 {
		return errors.New("config: rate limiter parameters must be positive")
	}
	if c.GateSlots <= 0 {
		return errors.New("config: hash gate slots must be positive")
	}
	if c.AuditExtraMax <= 0 {
		return errors.New("config: audit extra ceiling must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// String renders the config for startup logging with the secret masked.
func (c Config) String() string {
	return fmt.Sprintf("addr=%s issuer=%s ttl=%s rate=%d/%s lockout=%s slots=%d proxy=%t",
		c.Addr, c.TokenIssuer, c.TokenTTL, c.RateMaxAttempts, c.RateWindow, c.RateLockout, c.GateSlots, c.TrustProxy)
}
