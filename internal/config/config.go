// Package config provides configuration management for the counseling-system.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultLockWaitTimeout bounds how long a booking request waits for
	// the slot lock before failing with LOCK_UNAVAILABLE.
	DefaultLockWaitTimeout = 3 * time.Second

	// DefaultLockHoldTimeout bounds how long a crashed holder can keep a
	// slot lock before it is reclaimed.
	DefaultLockHoldTimeout = 10 * time.Second

	// DefaultReaperInterval is how often overdue sessions are swept.
	DefaultReaperInterval = time.Minute

	// DefaultReaperGrace is how long past its reservation time an OPEN
	// session stays open before the reaper closes it.
	DefaultReaperGrace = time.Hour

	// DefaultIdempotencyTTL is how long a booking idempotency key blocks
	// duplicate submissions.
	DefaultIdempotencyTTL = 24 * time.Hour

	// DefaultMaxPayloadSize is the default max request body size (100KB).
	DefaultMaxPayloadSize int64 = 100 * 1024
)

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// DatabaseURL is the PostgreSQL connection string. Empty selects the
	// in-memory stores (development only).
	DatabaseURL string

	// RedisAddr is the lock coordinator address. Empty selects the
	// in-process locker (development only; no cross-instance exclusion).
	RedisAddr string

	// LogLevel is the zerolog level name.
	LogLevel string

	// LogPretty enables console-formatted log output.
	LogPretty bool

	// LockWaitTimeout bounds the wait for the slot lock.
	LockWaitTimeout time.Duration

	// LockHoldTimeout is the slot lock TTL.
	LockHoldTimeout time.Duration

	// ReaperInterval is the sweep period for overdue sessions.
	ReaperInterval time.Duration

	// ReaperGrace is the overdue grace window.
	ReaperGrace time.Duration

	// IdempotencyTTL is the lifetime of booking idempotency keys.
	IdempotencyTTL time.Duration

	// MaxPayloadSize is the maximum request body size in bytes.
	MaxPayloadSize int64
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogPretty:       getEnvBoolOrDefault("LOG_PRETTY", false),
		LockWaitTimeout: getEnvDurationOrDefault("LOCK_WAIT_TIMEOUT", DefaultLockWaitTimeout),
		LockHoldTimeout: getEnvDurationOrDefault("LOCK_HOLD_TIMEOUT", DefaultLockHoldTimeout),
		ReaperInterval:  getEnvDurationOrDefault("REAPER_INTERVAL", DefaultReaperInterval),
		ReaperGrace:     getEnvDurationOrDefault("REAPER_GRACE", DefaultReaperGrace),
		IdempotencyTTL:  getEnvDurationOrDefault("IDEMPOTENCY_TTL", DefaultIdempotencyTTL),
		MaxPayloadSize:  getEnvInt64OrDefault("MAX_PAYLOAD_SIZE", DefaultMaxPayloadSize),
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64OrDefault returns the environment variable value as int64 or the default if not set or invalid.
func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable value as bool or the default if not set or invalid.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable value as a duration or the default if not set or invalid.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
