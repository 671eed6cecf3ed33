package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port      string
	DaidePort string
	DataDir   string

	// Optional backends. Empty DatabaseURL selects the file store; empty
	// RedisURL disables the live-state mirror.
	DatabaseURL string
	RedisURL    string

	JWTSecret string

	// Default phase deadlines for newly created games.
	MovementDeadline   time.Duration
	RetreatDeadline    time.Duration
	AdjustmentDeadline time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. Returns an error for values that cannot be parsed; callers
// treat that as a fatal configuration failure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envOrDefault("PORT", "8432"),
		DaidePort:   envOrDefault("DAIDE_PORT", "16713"),
		DataDir:     envOrDefault("DATA_DIR", "./data"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   envOrDefault("JWT_SECRET", "dev-secret-change-me"),
	}

	var err error
	if cfg.MovementDeadline, err = envDuration("MOVEMENT_DEADLINE_SECONDS", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetreatDeadline, err = envDuration("RETREAT_DEADLINE_SECONDS", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AdjustmentDeadline, err = envDuration("ADJUSTMENT_DEADLINE_SECONDS", 12*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}
