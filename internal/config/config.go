package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Storage      StorageConfig      `yaml:"storage"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Notification NotificationConfig `yaml:"notification"`
	Stats        StatsConfig        `yaml:"stats"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// StorageConfig selects the ticket store.
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level     string `yaml:"level"`
	SentryDSN string `yaml:"sentry_dsn"`
}

// ClassifierConfig selects and authenticates the AI classification backend.
type ClassifierConfig struct {
	Provider        string  `yaml:"provider"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
	GeminiAPIKey    string  `yaml:"gemini_api_key"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	Model           string  `yaml:"model"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	OpenAIBaseURL   string  `yaml:"openai_base_url"`
}

// NotificationConfig holds outbound alerting settings.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	MinPriority     string `yaml:"min_priority"`
}

// StatsConfig controls dashboard stats caching.
type StatsConfig struct {
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:                  "ticket-triage",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			Driver:        StorageDriverPostgres,
			SQLitePath:    "./data/tickets.db",
			RunMigrations: true,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Classifier: ClassifierConfig{
			Provider:       ProviderOpenAI,
			TimeoutSeconds: 30,
			OpenAIBaseURL:  "https://api.openai.com/v1",
		},
		Notification: NotificationConfig{
			MinPriority: "critical",
		},
		Stats: StatsConfig{
			CacheTTLSeconds: 60,
			RefreshSchedule: "*/5 * * * *",
		},
	}
}

// Load reads configuration from an optional YAML file and environment
// variables, applying defaults where possible. Environment wins over the file.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only need part of the
// configuration.
func Read() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(cfg.Redis.DB)))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)

	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.SQLitePath = getEnv("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.RunMigrations = getEnvAsBool("RUN_MIGRATIONS", cfg.Storage.RunMigrations)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	cfg.Redis.Addr = getEnvAllowEmpty("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = redisDB

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.SentryDSN = getEnv("SENTRY_DSN", cfg.Logger.SentryDSN)

	cfg.Classifier.Provider = strings.ToLower(getEnv("CLASSIFIER_PROVIDER", cfg.Classifier.Provider))
	cfg.Classifier.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.Classifier.OpenAIAPIKey)
	cfg.Classifier.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.Classifier.GeminiAPIKey)
	cfg.Classifier.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.Classifier.AnthropicAPIKey)
	cfg.Classifier.Model = getEnv("CLASSIFIER_MODEL", cfg.Classifier.Model)
	cfg.Classifier.TimeoutSeconds = getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", cfg.Classifier.TimeoutSeconds)
	cfg.Classifier.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.Classifier.OpenAIBaseURL)

	cfg.Notification.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", cfg.Notification.SlackWebhookURL)
	cfg.Notification.MinPriority = strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_MIN_PRIORITY", cfg.Notification.MinPriority)))

	cfg.Stats.CacheTTLSeconds = getEnvAsInt("STATS_CACHE_TTL_SECONDS", cfg.Stats.CacheTTLSeconds)
	cfg.Stats.RefreshSchedule = getEnvAllowEmpty("STATS_REFRESH_SCHEDULE", cfg.Stats.RefreshSchedule)

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for storage driver %q", c.Storage.Driver)
		}
	case StorageDriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for storage driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Classifier.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// APIKey returns the credential of the selected provider.
func (c ClassifierConfig) APIKey() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// Timeout returns the per-call provider timeout, or zero for none.
func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long computed stats stay cached.
func (s StatsConfig) CacheTTL() time.Duration {
	if s.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvAllowEmpty lets an explicitly empty variable clear the fallback.
func getEnvAllowEmpty(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
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
