package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/tickets")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, ProviderOpenAI, cfg.Classifier.Provider)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, "critical", cfg.Notification.MinPriority)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLITE")
	t.Setenv("SQLITE_PATH", "/tmp/tickets.db")
	t.Setenv("CLASSIFIER_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("NOTIFY_MIN_PRIORITY", " High ")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/tickets.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "g-key", cfg.Classifier.APIKey())
	assert.Equal(t, "high", cfg.Notification.MinPriority)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: sqlite
  sqlite_path: /var/lib/tickets.db
classifier:
  provider: anthropic
  anthropic_api_key: file-key
  model: claude-3-haiku
stats:
  cache_ttl_seconds: 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CLASSIFIER_MODEL", "env-model")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tickets.db", cfg.Storage.SQLitePath)
	assert.Equal(t, ProviderAnthropic, cfg.Classifier.Provider)
	assert.Equal(t, "file-key", cfg.Classifier.APIKey())
	assert.Equal(t, "env-model", cfg.Classifier.Model)
	assert.Equal(t, 2*time.Minute, cfg.Stats.CacheTTL())
	// values absent from the file keep their defaults
	assert.Equal(t, "8080", cfg.App.Port)
}

func TestValidate(t *testing.T) {
	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = "mysql"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = StorageDriverSQLite
		cfg.Classifier.Provider = "mistral"
		assert.Error(t, cfg.Validate())
	})

	t.Run("sqlite ok", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = StorageDriverSQLite
		assert.NoError(t, cfg.Validate())
	})
}

func TestClassifierAPIKeySelectsProvider(t *testing.T) {
	cfg := ClassifierConfig{OpenAIAPIKey: "o", GeminiAPIKey: "g", AnthropicAPIKey: "a"}

	cfg.Provider = ProviderOpenAI
	assert.Equal(t, "o", cfg.APIKey())
	cfg.Provider = ProviderGemini
	assert.Equal(t, "g", cfg.APIKey())
	cfg.Provider = ProviderAnthropic
	assert.Equal(t, "a", cfg.APIKey())
}
