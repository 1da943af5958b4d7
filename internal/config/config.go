package config

import (
	"os"
	"strconv"
	"time"

	"turnstile/internal/database"
	"turnstile/internal/lock"
	"turnstile/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	Database database.Config
	Redis    lock.Config
	NATS     messaging.Config

	Reservation ReservationConfig
	Sweeper     SweeperConfig
}

// ReservationConfig tunes the purchase coordinator.
type ReservationConfig struct {
	// LockTTL bounds how long a crashed coordinator can stall one user's
	// submissions. Must exceed worst-case coordinator latency.
	LockTTL time.Duration
	// HoldDuration is the seat hold window before automatic release.
	HoldDuration time.Duration
	// CounterRetries bounds retries of the event-counter CAS before the
	// request fails as sold out / contended.
	CounterRetries int
}

// SweeperConfig tunes the expiry reconciliation job.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8081"),
		GinMode:   getEnv("GIN_MODE", "release"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "turnstile"),
			Password:           getEnv("DB_PASSWORD", "turnstile123"),
			DBName:             getEnv("DB_NAME", "turnstile"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		Redis: lock.Config{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "turnstile"),
			ClientID:  getEnv("NATS_CLIENT_ID", "turnstile-api"),
		},

		Reservation: ReservationConfig{
			LockTTL:        time.Duration(getEnvInt("RESERVE_LOCK_TTL_SEC", 10)) * time.Second,
			HoldDuration:   time.Duration(getEnvInt("SEAT_HOLD_MIN", 15)) * time.Minute,
			CounterRetries: getEnvInt("COUNTER_CAS_RETRIES", 3),
		},

		Sweeper: SweeperConfig{
			Interval:  time.Duration(getEnvInt("SWEEP_INTERVAL_SEC", 30)) * time.Second,
			BatchSize: getEnvInt("SWEEP_BATCH_SIZE", 100),
		},
	}
}

// getEnv reads an environment variable or returns the default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer environment variable
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
