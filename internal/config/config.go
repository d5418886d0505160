// Package config provides environment configuration management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned when a value parses but is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all environment configuration for the application.
type Config struct {
	ServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT,required,notEmpty"`
	ProjectID          string `env:"FIREBASE_PROJECT_ID"`
	DatabaseURL        string `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr          string `env:"REDIS_ADDR"`

	FirestoreBaseURL  string        `env:"FIRESTORE_BASE_URL"   envDefault:"https://firestore.googleapis.com"`
	FirestoreDatabase string        `env:"FIRESTORE_DATABASE"   envDefault:"(default)"`
	TokenURL          string        `env:"OAUTH_TOKEN_URL"      envDefault:"https://oauth2.googleapis.com/token"`
	TokenScope        string        `env:"OAUTH_SCOPE"          envDefault:"https://www.googleapis.com/auth/datastore"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT"         envDefault:"0s"`
	BreakerMaxFails   uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTime   time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	BatchSize          int           `env:"SYNC_BATCH_SIZE"           envDefault:"10"`
	MaxRetries         int           `env:"SYNC_MAX_RETRIES"          envDefault:"3"`
	ClaimEvents        bool          `env:"SYNC_CLAIM_EVENTS"         envDefault:"false"`
	ClaimLease         time.Duration `env:"SYNC_CLAIM_LEASE"          envDefault:"1m"`
	PartialWritePolicy string        `env:"SYNC_PARTIAL_WRITE_POLICY" envDefault:"tolerate"`
	DeadLetter         bool          `env:"SYNC_DEAD_LETTER"          envDefault:"false"`
	BatchLockTTL       time.Duration `env:"SYNC_BATCH_LOCK_TTL"       envDefault:"2m"`

	Port              string        `env:"PORT"               envDefault:"8080"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL"   envDefault:"24h"`
	CleanupRetention  time.Duration `env:"CLEANUP_RETENTION"  envDefault:"168h"`
	ConsumerName      string        `env:"CONSUMER_NAME"      envDefault:"consumer-1"`
	LogLevel          string        `env:"LOG_LEVEL"          envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT"         envDefault:"text"`
}

// LoadConfig parses environment variables into Config struct.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the ranges env tags cannot express.
func (c *Config) Validate() error {
	switch c.PartialWritePolicy {
	case "tolerate", "strict":
	default:
		return fmt.Errorf("%w: SYNC_PARTIAL_WRITE_POLICY %q", ErrInvalidConfig, c.PartialWritePolicy)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: SYNC_BATCH_SIZE must be positive", ErrInvalidConfig)
	}

	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: SYNC_MAX_RETRIES must be positive", ErrInvalidConfig)
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: HTTP_TIMEOUT must not be negative", ErrInvalidConfig)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: LOG_FORMAT %q", ErrInvalidConfig, c.LogFormat)
	}

	return nil
}

// RedisEnabled reports whether Redis-backed features are configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
