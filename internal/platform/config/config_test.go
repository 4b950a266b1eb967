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

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 0.7, cfg.RiskThreshold)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 720*time.Hour, cfg.MaxGrantTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, uint8(0), cfg.SaltFloor)
	assert.Equal(t, 30*time.Second, cfg.HTTPReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPWriteTimeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("IDVAULT_RISK_THRESHOLD", "0.85")
	t.Setenv("IDVAULT_MAX_GRANT_TTL", "48h")
	t.Setenv("IDVAULT_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("IDVAULT_SALT_FLOOR", "200")
	t.Setenv("IDVAULT_HTTP_READ_TIMEOUT", "45s")
	t.Setenv("IDVAULT_HTTP_WRITE_TIMEOUT", "90s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.RiskThreshold)
	assert.Equal(t, 48*time.Hour, cfg.MaxGrantTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, uint8(200), cfg.SaltFloor)
	assert.Equal(t, 45*time.Second, cfg.HTTPReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.HTTPWriteTimeout)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("threshold out of range", func(t *testing.T) {
		t.Setenv("IDVAULT_RISK_THRESHOLD", "1.5")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv("IDVAULT_SESSION_TTL", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("salt floor out of byte range", func(t *testing.T) {
		t.Setenv("IDVAULT_SALT_FLOOR", "256")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
