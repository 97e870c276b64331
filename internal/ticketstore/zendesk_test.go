package ticketstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/config"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ZendeskClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewZendeskClient(config.ZendeskConfig{
		BaseURLOverride: srv.URL,
		Email:           "ops@example.com",
		Token:           "secret",
		TimeoutSeconds:  5,
	}, nil)
}

func TestZendeskSearchOpenByRequester(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		query := r.URL.Query().Get("query")
		assert.Contains(t, query, "requester:a@x.com")
		assert.Contains(t, query, "-status:solved")
		assert.Contains(t, query, "-tags:merged_source")
		assert.Contains(t, query, "-tags:proactive_alert")
		assert.Equal(t, "desc", r.URL.Query().Get("sort_order"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ops@example.com/token", user)
		assert.Equal(t, "secret", pass)

		_, _ = io.WriteString(w, `{
			"results": [
				{"id": 2, "result_type": "ticket", "subject": "payment failed", "status": "open", "priority": "high",
				 "requester_id": 77, "assignee_id": 9, "tags": ["a"], "via": {"channel": "email"},
				 "created_at": "2026-03-01T09:02:00Z", "updated_at": "2026-03-01T09:02:00Z"},
				{"id": 1, "result_type": "ticket", "subject": "eSIM not activating", "status": "new", "priority": null,
				 "requester_id": 77, "tags": [], "via": {"channel": "web"},
				 "created_at": "2026-03-01T09:00:00Z", "updated_at": "2026-03-01T09:00:00Z"},
				{"id": 5, "result_type": "user"}
			],
			"users": [{"id": 77, "name": "Ada", "email": "a@x.com"}]
		}`)
	})

	tickets, err := client.SearchOpenByRequester(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, "2", tickets[0].ID)
	assert.Equal(t, domain.TicketPriorityHigh, tickets[0].Priority)
	assert.Equal(t, "9", tickets[0].AssigneeID)
	assert.Equal(t, "Ada", tickets[0].RequesterName)
	assert.Equal(t, "email", tickets[0].Channel)

	assert.Equal(t, "1", tickets[1].ID)
	assert.Empty(t, tickets[1].Priority)
	assert.Empty(t, tickets[1].AssigneeID)
	assert.Equal(t, "a@x.com", tickets[1].RequesterEmail)
}

func TestZendeskNotFoundIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"RecordNotFound"}`)
	})

	_, err := client.GetTicket(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, http.MethodGet, apiErr.Method)
}

func TestZendeskServerErrorIsNotNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetComments(context.Background(), "1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestZendeskUpdateTicketPayload(t *testing.T) {
	var payload map[string]map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tickets/12.json", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = io.WriteString(w, `{"ticket": {"id": 12, "status": "pending", "tags": ["merged_source"]}}`)
	})

	status := domain.TicketStatusPending
	assignee := "31"
	ticket, err := client.UpdateTicket(context.Background(), "12", domain.TicketUpdate{
		Tags:       []string{"merged_source"},
		Status:     &status,
		AssigneeID: &assignee,
		Comment:    &domain.CommentInput{Body: "note", Public: false},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)

	body := payload["ticket"]
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 31, body["assignee_id"])
	assert.NotContains(t, body, "priority")
	comment := body["comment"].(map[string]any)
	assert.Equal(t, "note", comment["body"])
	assert.Equal(t, false, comment["public"])
}

func TestZendeskGetCommentsOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/3/comments.json", r.URL.Path)
		_, _ = io.WriteString(w, `{"comments": [
			{"id": 1, "author_id": 77, "body": "help", "public": true, "created_at": "2026-03-01T09:00:00Z"},
			{"id": 2, "author_id": 9, "body": "on it", "public": true, "created_at": "2026-03-01T09:05:00Z"}
		]}`)
	})

	comments, err := client.GetComments(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "77", comments[0].AuthorID)
	assert.Equal(t, domain.AuthorRoleCustomer, comments[0].RoleFor("77"))
	assert.Equal(t, domain.AuthorRoleAgent, comments[1].RoleFor("77"))
}

func TestZendeskCancelledContextSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetTicket(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestZendeskBulkUpdate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/update_many.json", r.URL.Path)
		assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"job_status": {"id": "abc"}}`)
	})

	status := domain.TicketStatusSolved
	require.NoError(t, client.BulkUpdate(context.Background(), []string{"1", "2"}, domain.TicketUpdate{Status: &status}))
	require.NoError(t, client.BulkUpdate(context.Background(), nil, domain.TicketUpdate{Status: &status}))
}
