package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Pending store backends
const (
	PendingStoreMemory = "memory"
	PendingStoreMongo  = "mongo"
	PendingStoreRedis  = "redis"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	JWTSecret string
	JWTTTL    time.Duration

	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string
	PublicWebBaseURL string

	VerificationRequired bool
	DirectSecretDelivery bool
	PendingStore         string
	RedisURL             string
	CodeTTL              time.Duration
	ResetTTL             time.Duration
	ReaperSchedule       string
	MaxCodeAttempts      int

	RateLimitRequests  int
	RateLimitWindowSec int
	RateLimitBurst     int
	TrustedProxyHops   int
}

// New reads the environment into a Config. Unset values fall back to their
// defaults and malformed ones are reported.
func New() (*Config, error) {
	p := &parser{}

	conf := &Config{
		URL:          os.Getenv("DB_URI"),
		DatabaseName: os.Getenv("DB_NAME"),
		BaseURL:      os.Getenv("BASE_URL"),
		Port:         getString("PORT", "8080"),
		Env:          getString("ENV", "local"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    p.duration("JWT_TTL", 24*time.Hour),

		SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		EmailFromAddress: getString("EMAIL_FROM_ADDRESS", "no-reply@freshfold.com"),
		EmailFromName:    getString("EMAIL_FROM_NAME", "Fresh Fold"),
		PublicWebBaseURL: os.Getenv("PUBLIC_WEB_BASE_URL"),

		VerificationRequired: p.boolean("VERIFICATION_REQUIRED", true),
		DirectSecretDelivery: p.boolean("DIRECT_SECRET_DELIVERY", false),
		PendingStore:         strings.ToLower(getString("PENDING_STORE", PendingStoreMemory)),
		RedisURL:             getString("REDIS_URL", "redis://localhost:6379/0"),
		CodeTTL:              p.duration("VERIFICATION_CODE_TTL", 10*time.Minute),
		ResetTTL:             p.duration("RESET_TOKEN_TTL", 10*time.Minute),
		ReaperSchedule:       getString("REAPER_SCHEDULE", "@every 10m"),
		MaxCodeAttempts:      p.integer("MAX_CODE_ATTEMPTS", 5),

		RateLimitRequests:  p.integer("RATELIMIT_AUTH_REQUESTS", 10),
		RateLimitWindowSec: p.integer("RATELIMIT_AUTH_WINDOW_SEC", 60),
		RateLimitBurst:     p.integer("RATELIMIT_AUTH_BURST", 5),
		TrustedProxyHops:   p.integer("TRUSTED_PROXY_HOPS", 0),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch conf.PendingStore {
	case PendingStoreMemory, PendingStoreMongo, PendingStoreRedis:
	default:
		return nil, fmt.Errorf("PENDING_STORE: unknown backend %q", conf.PendingStore)
	}
	if conf.TrustedProxyHops < 0 {
		return nil, fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative")
	}
	if conf.CodeTTL <= 0 || conf.ResetTTL <= 0 {
		return nil, fmt.Errorf("VERIFICATION_CODE_TTL and RESET_TOKEN_TTL must be positive")
	}
	return conf, nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser keeps the first malformed value it sees
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: invalid value %q: %w", key, value, err)
	}
}

func (p *parser) boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) integer(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

// duration accepts Go durations ("15m") or a bare number of seconds
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"success": false, "error": %q}`, message)))
}
