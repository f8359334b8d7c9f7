// Package config loads the medguard binary configuration from MEDGUARD_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/guard"
	"github.com/hupe1980/medguard/ratelimit"
	"github.com/hupe1980/medguard/retry"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "MEDGUARD"

// Supported providers and cache backends.
var (
	Providers       = []string{"mock", "openai", "anthropic", "gemini", "ollama"}
	CacheBackends   = []string{"memory", "redis", "none"}
	SessionBackends = []string{"memory", "redis"}
)

// Config holds the binary configuration.
type Config struct {
	// Model provider
	Provider    string  `envconfig:"PROVIDER" default:"mock"`
	Model       string  `envconfig:"MODEL"`
	BaseURL     string  `envconfig:"BASE_URL"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.2"`
	APIKey      string  `envconfig:"API_KEY"`
	// APIKeyFile is read when APIKey is empty, e.g. a Docker secret.
	APIKeyFile string `envconfig:"API_KEY_FILE"`

	// Retry and budgets
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"8s"`
	AttemptTimeout   time.Duration `envconfig:"ATTEMPT_TIMEOUT" default:"30s"`
	MaxProviderCalls int           `envconfig:"MAX_PROVIDER_CALLS" default:"3"`
	Deadline         time.Duration `envconfig:"DEADLINE"`

	// Guard Agent
	ApprovalThreshold    float64 `envconfig:"APPROVAL_THRESHOLD" default:"0.7"`
	UncertaintyThreshold float64 `envconfig:"UNCERTAINTY_THRESHOLD" default:"0.85"`

	// Cache
	CacheBackend  string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`

	// Chat history
	SessionBackend  string        `envconfig:"SESSION_BACKEND" default:"memory"`
	SessionMaxTurns int           `envconfig:"SESSION_MAX_TURNS" default:"20"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// Audit sinks; the in-memory sink is used when neither is set.
	AuditPostgresDSN string `envconfig:"AUDIT_POSTGRES_DSN"`
	AuditTable       string `envconfig:"AUDIT_TABLE" default:"audit_entries"`
	AuditRabbitMQURL string `envconfig:"AUDIT_RABBITMQ_URL"`
	AuditExchange    string `envconfig:"AUDIT_EXCHANGE" default:"medguard.audit"`
	AuditQueue       string `envconfig:"AUDIT_QUEUE" default:"medguard.audit"`

	// Rate limiter
	StudentRPS   float64 `envconfig:"STUDENT_RPS" default:"2"`
	StudentBurst int     `envconfig:"STUDENT_BURST" default:"5"`
	FacultyRPS   float64 `envconfig:"FACULTY_RPS" default:"5"`
	FacultyBurst int     `envconfig:"FACULTY_BURST" default:"10"`
	MaxWaiters   int     `envconfig:"MAX_WAITERS" default:"64"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"json"`
	MetricsAddr    string `envconfig:"METRICS_ADDR"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.APIKey == "" && cfg.APIKeyFile != "" {
		key, err := readSecret(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readSecret(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))

	if !contains(Providers, c.Provider) {
		return fmt.Errorf("invalid %s_PROVIDER %q, want one of %s", Prefix, c.Provider, strings.Join(Providers, ", "))
	}
	if !contains(CacheBackends, c.CacheBackend) {
		return fmt.Errorf("invalid %s_CACHE_BACKEND %q, want one of %s", Prefix, c.CacheBackend, strings.Join(CacheBackends, ", "))
	}

	if !contains(SessionBackends, c.SessionBackend) {
		return fmt.Errorf("invalid %s_SESSION_BACKEND %q, want one of %s", Prefix, c.SessionBackend, strings.Join(SessionBackends, ", "))
	}

	switch c.Provider {
	case "openai", "anthropic", "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("provider %s requires %s_API_KEY or %s_API_KEY_FILE", c.Provider, Prefix, Prefix)
		}
	}

	if c.ApprovalThreshold < 0 || c.ApprovalThreshold > 1 {
		return fmt.Errorf("approval threshold %.2f out of [0,1]", c.ApprovalThreshold)
	}
	if c.UncertaintyThreshold < c.ApprovalThreshold || c.UncertaintyThreshold > 1 {
		return fmt.Errorf("uncertainty threshold %.2f must be within [%.2f,1]", c.UncertaintyThreshold, c.ApprovalThreshold)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.MaxProviderCalls < 0 {
		return fmt.Errorf("max provider calls must not be negative, got %d", c.MaxProviderCalls)
	}

	return nil
}

// UsesRedis reports whether any component needs the Redis client.
func (c *Config) UsesRedis() bool {
	return c.CacheBackend == "redis" || c.SessionBackend == "redis"
}

// RetryPolicy applies the retry settings.
func (c *Config) RetryPolicy() func(p *retry.Policy) {
	return func(p *retry.Policy) {
		p.MaxAttempts = c.RetryMaxAttempts
		p.BaseDelay = c.RetryBaseDelay
		p.MaxDelay = c.RetryMaxDelay
		p.AttemptTimeout = c.AttemptTimeout
	}
}

// GuardOptions applies the threshold settings.
func (c *Config) GuardOptions() func(o *guard.Options) {
	return func(o *guard.Options) {
		o.ApprovalThreshold = c.ApprovalThreshold
		o.UncertaintyThreshold = c.UncertaintyThreshold
	}
}

// LimiterOptions applies the per-role quotas.
func (c *Config) LimiterOptions() func(o *ratelimit.Options) {
	return func(o *ratelimit.Options) {
		o.Quotas = map[core.Role]ratelimit.Quota{
			core.RoleStudent: {RPS: c.StudentRPS, Burst: c.StudentBurst},
			core.RoleFaculty: {RPS: c.FacultyRPS, Burst: c.FacultyBurst},
		}
		o.MaxWaiters = c.MaxWaiters
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
