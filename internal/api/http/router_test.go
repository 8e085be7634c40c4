package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
)

type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(context.Context, classifier.Completion) (string, error) {
	return s.reply, s.err
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  json.RawMessage `json:"meta"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type ticketJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type testServer struct {
	app     *fiber.App
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, provider classifier.Provider) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.NewSQLite(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, db.DB, zap.NewNop()))

	metrics := observability.NewMetrics()
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repository.NewSQLiteTicketRepository(db.DB),
		HistoryRepo: repository.NewSQLiteTicketHistoryRepository(db.DB),
		Classifier:  classifier.NewWithProvider(provider, zap.NewNop()),
		Dispatcher:  events.NewInMemoryDispatcher(zap.NewNop()),
		Metrics:     metrics,
	})

	app := httptransport.NewApp(httptransport.AppConfig{Name: "test", Metrics: metrics}, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler("ticket-triage", "test", "stub", metrics, handlers.DependencyCheck{
			Name: "sqlite", Ping: db.Ping,
		}),
		Tickets: handlers.NewTicketsHandler(svc),
	})
	return &testServer{app: app, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) create(t *testing.T, payload map[string]any) ticketJSON {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/tickets/", payload)
	require.Equal(t, http.StatusCreated, status)
	var ticket ticketJSON
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	return ticket
}

func TestCreateTicketEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	ticket := srv.create(t, map[string]any{"title": "VPN broken", "description": "cannot connect"})
	assert.NotZero(t, ticket.ID)
	assert.Equal(t, "general", ticket.Category)
	assert.Equal(t, "medium", ticket.Priority)
	assert.Equal(t, "open", ticket.Status)
	assert.NotEmpty(t, ticket.CreatedAt)

	ticket = srv.create(t, map[string]any{
		"title": "Refund", "description": "charged twice", "category": "billing", "priority": "high",
	})
	assert.Equal(t, "billing", ticket.Category)
	assert.Equal(t, "high", ticket.Priority)
}

func TestCreateTicketEndpointValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	for name, payload := range map[string]any{
		"missing title":  map[string]any{"description": "d"},
		"long title":     map[string]any{"title": strings.Repeat("x", 201), "description": "d"},
		"bad category":   map[string]any{"title": "t", "description": "d", "category": "shipping"},
		"empty priority": map[string]any{"title": "t", "description": "d", "priority": ""},
		"malformed json": `{"title":`,
	} {
		t.Run(name, func(t *testing.T) {
			status, env := srv.do(t, http.MethodPost, "/api/tickets", payload)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
		})
	}
}

func TestListTicketsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.create(t, map[string]any{"title": "Login fails", "description": "password reset", "category": "account"})
	srv.create(t, map[string]any{"title": "Invoice", "description": "wrong VAT", "category": "billing", "priority": "low"})
	srv.create(t, map[string]any{"title": "Crash", "description": "app crashes", "category": "technical", "priority": "critical"})

	status, env := srv.do(t, http.MethodGet, "/api/tickets/", nil)
	require.Equal(t, http.StatusOK, status)
	var items []ticketJSON
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "Crash", items[0].Title)

	status, env = srv.do(t, http.MethodGet, "/api/tickets?category=billing&priority=low", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Invoice", items[0].Title)

	status, env = srv.do(t, http.MethodGet, "/api/tickets?search=PASSWORD", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Login fails", items[0].Title)

	status, env = srv.do(t, http.MethodGet, "/api/tickets?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 1)
	var meta struct {
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
		Total    int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Meta, &meta))
	assert.Equal(t, 2, meta.Page)
	assert.Equal(t, 2, meta.PageSize)
	assert.EqualValues(t, 3, meta.Total)

	status, env = srv.do(t, http.MethodGet, "/api/tickets?status=waiting", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestGetTicketEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.create(t, map[string]any{"title": "t", "description": "d"})

	status, env := srv.do(t, http.MethodGet, "/api/tickets/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var got ticketJSON
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ID, got.ID)

	status, env = srv.do(t, http.MethodGet, "/api/tickets/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = srv.do(t, http.MethodGet, "/api/tickets/abc", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPatchTicketEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.create(t, map[string]any{"title": "Original", "description": "d"})
	path := "/api/tickets/" + itoa(created.ID)

	status, env := srv.do(t, http.MethodPatch, path, map[string]any{
		"status":     "resolved",
		"title":      "Renamed",
		"created_at": "2001-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, status)
	var got ticketJSON
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "resolved", got.Status)
	assert.Equal(t, "Original", got.Title, "title is not writable")
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	status, env = srv.do(t, http.MethodPatch, path, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "status")

	status, env = srv.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "resolved", got.Status)

	status, env = srv.do(t, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	var history []struct {
		ChangeType string `json:"change_type"`
		OldValue   string `json:"old_value"`
		NewValue   string `json:"new_value"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "status_change", history[0].ChangeType)
	assert.Equal(t, "open", history[0].OldValue)
	assert.Equal(t, "resolved", history[0].NewValue)

	status, _ = srv.do(t, http.MethodPatch, "/api/tickets/999", map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.create(t, map[string]any{"title": "a", "description": "d", "category": "billing", "priority": "high"})
	srv.create(t, map[string]any{"title": "b", "description": "d", "category": "billing", "status": "closed"})

	status, env := srv.do(t, http.MethodGet, "/api/tickets/stats/", nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		TotalTickets      int64            `json:"total_tickets"`
		OpenTickets       int64            `json:"open_tickets"`
		AvgTicketsPerDay  float64          `json:"avg_tickets_per_day"`
		PriorityBreakdown map[string]int64 `json:"priority_breakdown"`
		CategoryBreakdown map[string]int64 `json:"category_breakdown"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 2, stats.TotalTickets)
	assert.EqualValues(t, 1, stats.OpenTickets)
	assert.Equal(t, 2.0, stats.AvgTicketsPerDay)
	assert.Equal(t, map[string]int64{"low": 0, "medium": 1, "high": 1, "critical": 0}, stats.PriorityBreakdown)
	assert.Equal(t, map[string]int64{"billing": 2, "technical": 0, "account": 0, "general": 0}, stats.CategoryBreakdown)
}

func TestClassifyEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "```json\n{\"suggested_category\": \"billing\", \"suggested_priority\": \"high\"}\n```"})

	status, env := srv.do(t, http.MethodPost, "/api/tickets/classify/", map[string]any{"description": "I was charged twice this month"})
	require.Equal(t, http.StatusOK, status)
	var result struct {
		SuggestedCategory string `json:"suggested_category"`
		SuggestedPriority string `json:"suggested_priority"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "billing", result.SuggestedCategory)
	assert.Equal(t, "high", result.SuggestedPriority)

	status, env = srv.do(t, http.MethodPost, "/api/tickets/classify", map[string]any{"description": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	assert.EqualValues(t, 1, srv.metrics.Snapshot().Classifications["stub|suggested"])
}

func TestClassifyEndpointUnavailable(t *testing.T) {
	for name, provider := range map[string]classifier.Provider{
		"disabled":       nil,
		"provider error": &stubProvider{err: errors.New("quota exceeded")},
		"prose reply":    &stubProvider{reply: "This looks like billing."},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, provider)
			status, env := srv.do(t, http.MethodPost, "/api/tickets/classify", map[string]any{"description": "help"})
			assert.Equal(t, http.StatusServiceUnavailable, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, "CLASSIFICATION_UNAVAILABLE", env.Error.Code)
		})
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := srv.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	var ready map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", ready["status"])

	srv.do(t, http.MethodGet, "/api/tickets/999", nil)
	status, env := srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	var snapshot observability.MetricsSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.EqualValues(t, 1, snapshot.Errors["/api/tickets/:id|GET|NOT_FOUND"])
	assert.EqualValues(t, 1, snapshot.Requests["/api/tickets/:id|GET|404"])
}

func TestReadinessFailsWhenDependencyDown(t *testing.T) {
	app := httptransport.NewApp(httptransport.AppConfig{Name: "test"}, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler("ticket-triage", "test", "disabled", nil,
			handlers.DependencyCheck{Name: "postgres", Ping: func(context.Context) error { return errors.New("refused") }},
			handlers.DependencyCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("refused") }, Optional: true},
		),
		Tickets: handlers.NewTicketsHandler(service.NewTicketService(service.TicketDependencies{})),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	status, env := srv.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })

	status, env := srv.do(t, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
