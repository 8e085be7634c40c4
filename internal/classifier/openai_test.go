package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
)

func TestOpenAIProviderComplete(t *testing.T) {
	const fencedReply = "```json\n{\"category\": \"account\", \"priority\": \"low\"}\n```"
	var received openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": fencedReply}},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("sk-test", "", server.URL+"/", time.Second)
	text, err := provider.Complete(context.Background(), Completion{System: "sys", Prompt: "prompt", Temperature: 0.3})

	require.NoError(t, err)
	assert.Equal(t, fencedReply, text)
	assert.Equal(t, defaultOpenAIModel, received.Model)
	assert.InDelta(t, 0.3, received.Temperature, 0.0001)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Equal(t, "prompt", received.Messages[1].Content)
}

func TestOpenAIProviderErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"api error":    {status: http.StatusUnauthorized, body: `{"error":{"message":"invalid api key"}}`},
		"no choices":   {status: http.StatusOK, body: `{"choices":[]}`},
		"not json":     {status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		"empty status": {status: http.StatusInternalServerError, body: `{}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			provider := NewOpenAIProvider("sk-test", "gpt-4o-mini", server.URL, time.Second)
			_, err := provider.Complete(context.Background(), Completion{Prompt: "p"})
			assert.Error(t, err)
		})
	}
}

func TestClassifierEndToEndWithOpenAI(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"category\": \"billing\", \"priority\": \"high\"}"}}]}`))
	}))
	defer server.Close()

	c, err := New(context.Background(), config.ClassifierConfig{
		Provider:      config.ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: server.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	result, ok := c.Classify(context.Background(), "I was charged twice this month")

	require.True(t, ok)
	assert.Equal(t, domain.ClassificationResult{
		SuggestedCategory: domain.TicketCategoryBilling,
		SuggestedPriority: domain.TicketPriorityHigh,
	}, result)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClassifierWithoutKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	c, err := New(context.Background(), config.ClassifierConfig{
		Provider:      config.ProviderOpenAI,
		OpenAIBaseURL: server.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	_, ok := c.Classify(context.Background(), "anything")

	assert.False(t, ok)
	assert.Zero(t, hits.Load())
}

func TestClassifierProviderTimeoutIsAbsent(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewWithProvider(NewOpenAIProvider("sk-test", "", server.URL, 50*time.Millisecond), zap.NewNop())

	_, ok := c.Classify(context.Background(), "slow")
	assert.False(t, ok)
}
