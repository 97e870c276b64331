package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/api/http/handlers"
	"github.com/spec-kit/reactive-engine/internal/auth"
	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/kv"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/repository"
	"github.com/spec-kit/reactive-engine/internal/scheduler"
	"github.com/spec-kit/reactive-engine/internal/service"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	app    *fiber.App
	clock  *clock.FakeClock
	store  *ticketstore.MemoryStore
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	c := clock.Fake(epoch)
	store := ticketstore.NewMemoryStore(c, "engine")
	state := kv.NewMemoryStore(c)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics(nil)
	logger := zap.NewNop()

	merges := service.NewMergeService(service.MergeDependencies{
		Store:       store,
		Scheduler:   scheduler.New(c),
		PendingRepo: repository.NewPendingMergeRepository(state),
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Clock:       c,
		Logger:      logger,
	})
	gate := service.NewOutboundGateService(service.OutboundGateDependencies{
		CommsLog:   repository.NewMemoryCommsLog(c, repository.DefaultCommsRetention),
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      c,
		Logger:     logger,
	})
	locks := service.NewLockService(service.LockDependencies{
		LockRepo:   repository.NewLockRepository(state),
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      c,
		Logger:     logger,
	})
	reactive, err := service.NewReactiveService(service.ReactiveDependencies{
		Store:      store,
		Merges:     merges,
		Locks:      locks,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      c,
		Logger:     logger,
	})
	require.NoError(t, err)

	tokens := auth.NewTokenManager("test-secret", 60)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("reactive-engine", "test", map[string]handlers.Pinger{"postgres": nil}),
		Reactive:       handlers.NewReactiveHandler(reactive, merges, gate, locks),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, clock: c, store: store, tokens: tokens}
}

func (s *testServer) token(t *testing.T, subject domain.SubjectType, id string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(id, subject)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) ticket(id, email, subject string) {
	s.store.Put(domain.Ticket{
		ID:             id,
		Subject:        subject,
		Status:         domain.TicketStatusOpen,
		RequesterID:    "user-" + email,
		RequesterEmail: email,
		CreatedAt:      s.clock.Now(),
	})
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestReactiveRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/api/reactive/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestTicketCreatedEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.ticket("101", "a@x.com", "eSIM not activating")
	s.ticket("102", "a@x.com", "payment failed")
	hook := s.token(t, domain.SubjectTypeWebhook, "zendesk")

	status, body := s.do(t, http.MethodPost, "/api/reactive/ticket-created", hook,
		`{"ticket_id": 102, "requester_email": "A@x.com"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "merge_scheduled", body["action"])
	assert.EqualValues(t, 2, body["ticket_count"])
	assert.Equal(t, "2026-03-01T09:02:00Z", body["deadline"])

	status, body = s.do(t, http.MethodPost, "/api/reactive/ticket-created", hook, `{"ticket_id": "103"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = s.do(t, http.MethodPost, "/api/reactive/ticket-created", hook, `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	agent := s.token(t, domain.SubjectTypeAgent, "agent-7")
	status, body = s.do(t, http.MethodPost, "/api/reactive/ticket-created", agent,
		`{"ticket_id": "102", "requester_email": "a@x.com"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestOutboundGateEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.ticket("10", "a@x.com", "question")
	agent := s.token(t, domain.SubjectTypeAgent, "agent-7")
	payload := `{"ticket_id": "10", "requester_email": "a@x.com", "agent_response": "Hi there"}`

	status, body := s.do(t, http.MethodPost, "/api/reactive/outbound-gate", agent, payload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["allow"])
	assert.Empty(t, body["warnings"])

	s.clock.Advance(5 * time.Minute)
	status, body = s.do(t, http.MethodPost, "/api/reactive/outbound-gate", agent, payload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["allow"])
	warnings, ok := body["warnings"].([]any)
	require.True(t, ok)
	require.Len(t, warnings, 1)
	first := warnings[0].(map[string]any)
	assert.Equal(t, "15min_window", first["type"])
	assert.Equal(t, "2026-03-01T09:00:00Z", first["last_sent"])
}

func TestLockEndpointUsesAgentToken(t *testing.T) {
	s := newTestServer(t)
	s.ticket("10", "a@x.com", "question")

	status, body := s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeAgent, "agent-7"), `{"ticket_id": 10}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, "agent-7", body["agent_id"])

	s.clock.Advance(3 * time.Minute)
	status, body = s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeAgent, "agent-8"), `{"ticket_id": "10"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["locked"])
	assert.Equal(t, "agent-7", body["locked_by"])
	assert.EqualValues(t, 3, body["lock_age_minutes"])
}

func TestLockEndpointRejectsForeignAgentID(t *testing.T) {
	s := newTestServer(t)
	s.ticket("10", "a@x.com", "question")

	status, _ := s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeAgent, "agent-7"), `{"ticket_id": "10"}`)
	require.Equal(t, http.StatusOK, status)

	s.clock.Advance(time.Minute)
	status, body := s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeAgent, "agent-8"),
		`{"ticket_id": "10", "agent_id": "agent-7"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeAgent, "agent-7"),
		`{"ticket_id": "10", "agent_id": "agent-7"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["locked"])

	status, body = s.do(t, http.MethodPost, "/api/reactive/lock", s.token(t, domain.SubjectTypeSystem, "sidebar-sync"),
		`{"ticket_id": "10", "agent_id": "agent-9"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["locked"])
	assert.Equal(t, "agent-7", body["locked_by"])
}

func TestStatusAndMergesEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.ticket("1", "a@x.com", "eSIM")
	s.ticket("2", "a@x.com", "refund")
	hook := s.token(t, domain.SubjectTypeWebhook, "zendesk")
	agent := s.token(t, domain.SubjectTypeAgent, "agent-7")

	status, _ := s.do(t, http.MethodPost, "/api/reactive/ticket-created", hook, `{"ticket_id": "2", "requester_email": "a@x.com"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodGet, "/api/reactive/status", agent, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["pending_merges"])
	assert.EqualValues(t, 0, body["active_locks"])

	status, body = s.do(t, http.MethodGet, "/api/reactive/merges?requester_email=a@x.com", agent, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["history_enabled"])
	pending, ok := body["pending"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T09:02:00Z", pending["deadline"])

	status, body = s.do(t, http.MethodGet, "/api/reactive/merges", agent, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "reactive_engine_http_requests_total")
}
