package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"grandgold-errcache/internal/errorcache"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Auth        AuthConfig
	ErrorCache  ErrorCacheConfig
	Redis       RedisConfig
	DecisionLog DecisionLogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"grandgold-errcache"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// AuthConfig holds API key settings. No keys disables authentication.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// ErrorCacheConfig holds the suppression policy and its backing store.
type ErrorCacheConfig struct {
	TTL            time.Duration `envconfig:"ERROR_CACHE_TTL" default:"5m"`
	MaxRetries     int           `envconfig:"ERROR_CACHE_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"ERROR_CACHE_RETRY_BASE_DELAY" default:"1s"`
	Enabled        bool          `envconfig:"ERROR_CACHE_ENABLED" default:"true"`
	Store          string        `envconfig:"ERROR_CACHE_STORE" default:"memory"` // memory or redis
	KeyPrefix      string        `envconfig:"ERROR_CACHE_KEY_PREFIX" default:"grandgold:errcache"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DecisionLogConfig holds decision log database settings.
type DecisionLogConfig struct {
	Type string `envconfig:"DECISION_LOG_TYPE" default:"none"` // none, sqlite, postgres, mysql or mongodb
	Path string `envconfig:"DECISION_LOG_PATH" default:"./data/decisions.db"`
	// DSN is used by postgres and mysql
	DSN string `envconfig:"DECISION_LOG_DSN" default:""`
	// MongoDB settings
	MongoURI        string `envconfig:"DECISION_LOG_MONGO_URI" default:""`
	MongoDatabase   string `envconfig:"DECISION_LOG_MONGO_DATABASE" default:"grandgold"`
	MongoCollection string `envconfig:"DECISION_LOG_MONGO_COLLECTION" default:"error_decisions"`

	FlushInterval   time.Duration `envconfig:"DECISION_LOG_FLUSH_INTERVAL" default:"10s"`
	Retention       time.Duration `envconfig:"DECISION_LOG_RETENTION" default:"72h"`
	CleanupInterval time.Duration `envconfig:"DECISION_LOG_CLEANUP_INTERVAL" default:"1h"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// SlogLevel parses LOG_LEVEL. Unknown values fall back to info.
func (a *AppConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Enabled reports whether a decision log backend is configured.
func (d *DecisionLogConfig) Enabled() bool {
	return d.Type != "" && d.Type != "none"
}

// Validate checks value ranges envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.ErrorCache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("ERROR_CACHE_TTL must be positive, got %s", c.ErrorCache.TTL))
	}
	if c.ErrorCache.MaxRetries < 0 || c.ErrorCache.MaxRetries > errorcache.MaxRetriesLimit {
		errs = append(errs, fmt.Errorf("ERROR_CACHE_MAX_RETRIES must be between 0 and %d, got %d",
			errorcache.MaxRetriesLimit, c.ErrorCache.MaxRetries))
	}
	if c.ErrorCache.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("ERROR_CACHE_RETRY_BASE_DELAY must be positive, got %s", c.ErrorCache.RetryBaseDelay))
	}

	switch strings.ToLower(c.ErrorCache.Store) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ERROR_CACHE_STORE must be memory or redis, got %q", c.ErrorCache.Store))
	}

	switch strings.ToLower(c.DecisionLog.Type) {
	case "", "none", "sqlite":
	case "postgres", "postgresql", "mysql":
		if c.DecisionLog.DSN == "" {
			errs = append(errs, fmt.Errorf("DECISION_LOG_DSN is required when DECISION_LOG_TYPE=%s", c.DecisionLog.Type))
		}
	case "mongodb", "mongo":
		if c.DecisionLog.MongoURI == "" {
			errs = append(errs, errors.New("DECISION_LOG_MONGO_URI is required when DECISION_LOG_TYPE=mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DECISION_LOG_TYPE %q", c.DecisionLog.Type))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
