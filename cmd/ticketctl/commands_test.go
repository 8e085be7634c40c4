package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/config"
)

func execute(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyPrintsSuggestion(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) > 0 {
			prompt = body.Messages[len(body.Messages)-1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": `{"category":"billing","priority":"high"}`}},
			},
		})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Classifier.OpenAIAPIKey = "sk-test"
	cfg.Classifier.OpenAIBaseURL = server.URL

	out, err := execute(t, cfg, "classify", "charged", "twice")

	require.NoError(t, err)
	assert.Contains(t, prompt, `Description: "charged twice"`)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"suggested_category": "billing", "suggested_priority": "high"}, got)
}

func TestClassifyWithoutKeyFails(t *testing.T) {
	cfg := config.Default()

	out, err := execute(t, cfg, "classify", "anything")

	assert.ErrorIs(t, err, errNoSuggestion)
	assert.Empty(t, out)
}

func TestClassifyRequiresDescription(t *testing.T) {
	_, err := execute(t, config.Default(), "classify")
	assert.Error(t, err)
}

func TestMigrateThenStatsOnSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageDriverSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "tickets.db")

	out, err := execute(t, cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")

	out, err = execute(t, cfg, "stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 0, stats["total_tickets"])
}

func TestMigrateRequiresPostgresDSN(t *testing.T) {
	_, err := execute(t, config.Default(), "migrate")
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestClassifyProviderFlagIgnoresCase(t *testing.T) {
	cfg := config.Default()

	_, err := execute(t, cfg, "classify", "--provider", "Anthropic", "anything")

	assert.ErrorIs(t, err, errNoSuggestion, "a known provider without a key is disabled, not rejected")
	assert.NotContains(t, err.Error(), "unknown classifier provider")
}
