// Package config centralizes environment-driven configuration so main stays
// lean and services receive plain values instead of reading globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup. Decision thresholds
// live here, not in the policy, so every decision can echo the values it was
// made with.
type Config struct {
	Addr string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	PostgresURL string
	RedisURL    string

	KafkaBrokers []string
	AuditTopic   string

	JWTSigningKey string
	SessionTTL    time.Duration
	RefreshTTL    time.Duration
	LoginPerMin   int

	RiskThreshold       float64
	ConfidenceThreshold float64
	EvaluatorTimeout    time.Duration

	MaxGrantTTL   time.Duration
	SweepInterval time.Duration

	// SaltFloor is the lowest salt value the address deriver will probe down
	// to before giving up. 0 means the full 255..0 range.
	SaltFloor uint8
}

// FromEnv builds a Config from environment variables, applying defaults that
// work for local development.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("IDVAULT_ADDR", ":8080"),
		HTTPReadTimeout:     30 * time.Second,
		HTTPWriteTimeout:    60 * time.Second,
		PostgresURL:         os.Getenv("IDVAULT_POSTGRES_URL"),
		RedisURL:            os.Getenv("IDVAULT_REDIS_URL"),
		KafkaBrokers:        splitList(os.Getenv("IDVAULT_KAFKA_BROKERS")),
		AuditTopic:          envOr("IDVAULT_AUDIT_TOPIC", "idvault.audit"),
		JWTSigningKey:       envOr("IDVAULT_JWT_SIGNING_KEY", "dev-secret-change-in-production"),
		SessionTTL:          24 * time.Hour,
		RefreshTTL:          30 * 24 * time.Hour,
		LoginPerMin:         10,
		RiskThreshold:       0.7,
		ConfidenceThreshold: 0.6,
		EvaluatorTimeout:    30 * time.Second,
		MaxGrantTTL:         720 * time.Hour,
		SweepInterval:       10 * time.Minute,
		SaltFloor:           0,
	}

	var err error
	if cfg.SessionTTL, err = durationOr("IDVAULT_SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = durationOr("IDVAULT_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.EvaluatorTimeout, err = durationOr("IDVAULT_EVALUATOR_TIMEOUT", cfg.EvaluatorTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxGrantTTL, err = durationOr("IDVAULT_MAX_GRANT_TTL", cfg.MaxGrantTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationOr("IDVAULT_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.HTTPReadTimeout, err = durationOr("IDVAULT_HTTP_READ_TIMEOUT", cfg.HTTPReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HTTPWriteTimeout, err = durationOr("IDVAULT_HTTP_WRITE_TIMEOUT", cfg.HTTPWriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RiskThreshold, err = floatOr("IDVAULT_RISK_THRESHOLD", cfg.RiskThreshold); err != nil {
		return Config{}, err
	}
	if cfg.ConfidenceThreshold, err = floatOr("IDVAULT_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold); err != nil {
		return Config{}, err
	}
	if cfg.LoginPerMin, err = intOr("IDVAULT_LOGIN_PER_MIN", cfg.LoginPerMin); err != nil {
		return Config{}, err
	}
	saltFloor, err := intOr("IDVAULT_SALT_FLOOR", int(cfg.SaltFloor))
	if err != nil {
		return Config{}, err
	}
	if saltFloor < 0 || saltFloor > 255 {
		return Config{}, fmt.Errorf("IDVAULT_SALT_FLOOR must be in [0,255], got %d", saltFloor)
	}
	cfg.SaltFloor = uint8(saltFloor)

	if cfg.RiskThreshold < 0 || cfg.RiskThreshold > 1 {
		return Config{}, fmt.Errorf("IDVAULT_RISK_THRESHOLD must be in [0,1], got %v", cfg.RiskThreshold)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("IDVAULT_CONFIDENCE_THRESHOLD must be in [0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.MaxGrantTTL <= 0 {
		return Config{}, fmt.Errorf("IDVAULT_MAX_GRANT_TTL must be positive, got %v", cfg.MaxGrantTTL)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func floatOr(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func intOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
