package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "bastion/pkg/platform/strings"
)

// Development defaults. Production refuses to start with any of these.
const (
	devAuditSecret  = "dev-audit-secret-change-in-production"
	devResultSecret = "dev-result-secret-change-in-production"
	devJWTKey       = "dev-secret-key-change-in-production"
	devAdminToken   = "dev-admin-token"
)

// Server captures HTTP server level configuration.
type Server struct {
	Environment string
	AdminAddr   string
	AdminToken  string
}

// RedisConfig configures the shared Redis client. An empty URL disables
// Redis and the in-memory stores are used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Signing holds the secrets integrity tags and session tokens derive from.
type Signing struct {
	AuditKeyID    string
	AuditSecret   string
	ResultSecret  string
	JWTSigningKey string
	TokenIssuer   string
	TokenAudience string
}

type Guard struct {
	DefaultTimeout time.Duration
	CriticalTypes  []string
}

type RateLimit struct {
	AbuseThreshold int
	AbuseWindow    time.Duration
}

type Config struct {
	Server            Server
	DatabaseURL       string
	Redis             RedisConfig
	Kafka             KafkaConfig
	Signing           Signing
	Guard             Guard
	RateLimit         RateLimit
	SensitivePatterns []string
	AlertWebhookURL   string
}

func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Server: Server{
			Environment: envOr("ENVIRONMENT", "development"),
			AdminAddr:   envOr("ADMIN_ADDR", ":8080"),
			AdminToken:  envOr("ADMIN_TOKEN", devAdminToken),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:    list("KAFKA_BROKERS"),
			AuditTopic: envOr("AUDIT_KAFKA_TOPIC", "bastion.audit.critical"),
		},
		Signing: Signing{
			AuditKeyID:    envOr("AUDIT_KEY_ID", "k1"),
			AuditSecret:   envOr("AUDIT_SIGNING_SECRET", devAuditSecret),
			ResultSecret:  envOr("RESULT_SIGNING_SECRET", devResultSecret),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", devJWTKey),
			TokenIssuer:   envOr("TOKEN_ISSUER", "bastion"),
			TokenAudience: envOr("TOKEN_AUDIENCE", "bastion-operations"),
		},
		Guard: Guard{
			DefaultTimeout: durationOr("GUARD_DEFAULT_TIMEOUT", 10*time.Second, &errs),
			CriticalTypes:  list("GUARD_CRITICAL_TYPES"),
		},
		RateLimit: RateLimit{
			AbuseThreshold: intOr("RATE_LIMIT_ABUSE_THRESHOLD", 10, &errs),
			AbuseWindow:    durationOr("RATE_LIMIT_ABUSE_WINDOW", 15*time.Minute, &errs),
		},
		SensitivePatterns: splitPatterns(os.Getenv("SENSITIVE_PATTERNS")),
		AlertWebhookURL:   os.Getenv("ALERT_WEBHOOK_URL"),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects development secrets in production and values the
// components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		dev := map[string]string{
			"AUDIT_SIGNING_SECRET":  devAuditSecret,
			"RESULT_SIGNING_SECRET": devResultSecret,
			"JWT_SIGNING_KEY":       devJWTKey,
			"ADMIN_TOKEN":           devAdminToken,
		}
		got := map[string]string{
			"AUDIT_SIGNING_SECRET":  c.Signing.AuditSecret,
			"RESULT_SIGNING_SECRET": c.Signing.ResultSecret,
			"JWT_SIGNING_KEY":       c.Signing.JWTSigningKey,
			"ADMIN_TOKEN":           c.Server.AdminToken,
		}
		for name, def := range dev {
			if got[name] == def {
				errs = append(errs, fmt.Errorf("%s must be set in production", name))
			}
		}
	}
	if c.Guard.DefaultTimeout <= 0 {
		errs = append(errs, errors.New("GUARD_DEFAULT_TIMEOUT must be positive"))
	}
	if c.RateLimit.AbuseThreshold <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_ABUSE_THRESHOLD must be positive"))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func durationOr(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func list(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return platformstrings.DedupeAndTrim(strings.Split(v, ","))
}

// splitPatterns splits on newlines; regular expressions may contain commas.
func splitPatterns(v string) []string {
	if v == "" {
		return nil
	}
	return platformstrings.DedupeAndTrim(strings.Split(v, "\n"))
}
