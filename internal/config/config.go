package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minProductionSecretLength = 32

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Retry    RetryConfig
	Relay    RelayConfig
	Broker   BrokerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines credential parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	BcryptCost            int
}

// RetryConfig tunes the transaction retry policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMS int
	MaxDelayMS  int
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	IntervalSeconds int
	BatchSize       int
	LockTTLSeconds  int
}

// BrokerConfig points the message bus at RabbitMQ. An empty URL logs events
// instead of publishing them.
type BrokerConfig struct {
	URL      string
	Exchange string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "identity-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_ISSUER", "identity-service"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLDays:   getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_DAYS", 21),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelayMS: getEnvAsInt("RETRY_BASE_DELAY_MS", 1000),
			MaxDelayMS:  getEnvAsInt("RETRY_MAX_DELAY_MS", 30000),
		},
		Relay: RelayConfig{
			IntervalSeconds: getEnvAsInt("RELAY_INTERVAL_SECONDS", 5),
			BatchSize:       getEnvAsInt("RELAY_BATCH_SIZE", 50),
			LockTTLSeconds:  getEnvAsInt("RELAY_LOCK_TTL_SECONDS", 30),
		},
		Broker: BrokerConfig{
			URL:      os.Getenv("BROKER_URL"),
			Exchange: getEnv("BROKER_EXCHANGE", "identity.events"),
		},
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !c.App.IsDevelopment() && len(c.Auth.JWTSecret) < minProductionSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters outside development", minProductionSecretLength))
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL_MINUTES must be positive"))
	}
	if c.Auth.RefreshTokenTTLDays <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TOKEN_TTL_DAYS must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 || c.Retry.BaseDelayMS <= 0 || c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		errs = append(errs, errors.New("RETRY_* must be positive and RETRY_MAX_DELAY_MS >= RETRY_BASE_DELAY_MS"))
	}
	if c.Relay.IntervalSeconds <= 0 || c.Relay.BatchSize <= 0 || c.Relay.LockTTLSeconds <= 0 {
		errs = append(errs, errors.New("RELAY_* must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether relaxed defaults are acceptable.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development") || strings.EqualFold(a.Env, "test")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// RefreshTokenTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLDays) * 24 * time.Hour
}

// Interval returns the relay polling period.
func (r RelayConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// LockTTL returns the relay lease lifetime.
func (r RelayConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
