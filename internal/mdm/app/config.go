package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer       string // Issuer claim for session tokens (default: mdm)
	SigningKey   string // Optional: HS256 signing key; random per-process when empty
	TokenTTL     time.Duration // Session token lifetime (default: 30m)
	DatabaseFile string // Path to SQLite database file (default: ./mdm.db)

	AdminUser     string // Optional: seed account username (created if missing)
	AdminPassword string // Optional: seed account password

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8443)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:               getEnvOrDefault("MDM_ISSUER", "mdm"),
		SigningKey:           os.Getenv("MDM_SIGNING_KEY"),
		TokenTTL:             getEnvDurationOrDefault("MDM_TOKEN_TTL", 30*time.Minute),
		DatabaseFile:         getEnvOrDefault("MDM_DATABASE_FILE", "mdm.db"),
		AdminUser:            os.Getenv("MDM_ADMIN_USER"),
		AdminPassword:        os.Getenv("MDM_ADMIN_PASSWORD"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8443),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer minutes for backwards compatibility
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
