package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDatabaseURL       = "library.db"
	DefaultServerAddr        = ":8080"
	DefaultSessionTTL        = 12 * time.Hour
	DefaultSeedAdminUsername = "admin"
	DefaultSeedAdminSecret   = "admin123"
	DefaultLogLevel          = "info"
)

type Config struct {
	// DatabaseURL is a postgres:// URL or a SQLite file path.
	DatabaseURL string
	ServerAddr  string
	// RedisAddr selects the Redis session store when set; sessions live in
	// process memory otherwise.
	RedisAddr         string
	SessionTTL        time.Duration
	SeedAdminUsername string
	SeedAdminSecret   string
	LogLevel          string
	LogJSON           bool
}

// FromEnv reads the configuration from the environment, falling back to the
// defaults above.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:       getenv("DATABASE_URL", DefaultDatabaseURL),
		ServerAddr:        getenv("SERVER_ADDR", DefaultServerAddr),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		SessionTTL:        DefaultSessionTTL,
		SeedAdminUsername: getenv("SEED_ADMIN_USERNAME", DefaultSeedAdminUsername),
		SeedAdminSecret:   getenv("SEED_ADMIN_SECRET", DefaultSeedAdminSecret),
		LogLevel:          getenv("LOG_LEVEL", DefaultLogLevel),
		LogJSON:           os.Getenv("LOG_FORMAT") == "json",
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	return cfg, nil
}

// Validate checks the fields the server cannot start without.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.SeedAdminUsername == "" || c.SeedAdminSecret == "" {
		return fmt.Errorf("seed admin username and secret are required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger builds the process logger described by the config.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
