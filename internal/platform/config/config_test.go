package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, ":8080", cfg.Server.AdminAddr)
	assert.Equal(t, 10*time.Second, cfg.Guard.DefaultTimeout)
	assert.Equal(t, 10, cfg.RateLimit.AbuseThreshold)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.AbuseWindow)
	assert.Empty(t, cfg.Redis.URL)
	assert.Nil(t, cfg.Kafka.Brokers)
}

func TestFromEnv_Lists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,k1:9092")
	t.Setenv("GUARD_CRITICAL_TYPES", "payment.capture,user.delete")
	t.Setenv("SENSITIVE_PATTERNS", "ssn-\\d{3}\n(?i)iban,[a-z]+")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"payment.capture", "user.delete"}, cfg.Guard.CriticalTypes)
	assert.Equal(t, []string{"ssn-\\d{3}", "(?i)iban,[a-z]+"}, cfg.SensitivePatterns)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	t.Setenv("GUARD_DEFAULT_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_ABUSE_THRESHOLD", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GUARD_DEFAULT_TIMEOUT")
	assert.Contains(t, err.Error(), "RATE_LIMIT_ABUSE_THRESHOLD")
}

func TestFromEnv_ProductionRejectsDevSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SIGNING_KEY", "real-key")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_SIGNING_SECRET")
	assert.NotContains(t, err.Error(), "JWT_SIGNING_KEY")

	t.Setenv("AUDIT_SIGNING_SECRET", "a")
	t.Setenv("RESULT_SIGNING_SECRET", "b")
	t.Setenv("ADMIN_TOKEN", "c")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
