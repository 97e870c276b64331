package ticketstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/config"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// ZendeskClient talks to the Zendesk v2 REST API with API-token basic auth.
type ZendeskClient struct {
	baseURL string
	email   string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewZendeskClient builds a client from configuration.
func NewZendeskClient(cfg config.ZendeskConfig, logger *zap.Logger) *ZendeskClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZendeskClient{
		baseURL: strings.TrimRight(cfg.BaseURL(), "/"),
		email:   cfg.Email,
		token:   cfg.Token,
		timeout: cfg.Timeout(),
		logger:  logger.Named("zendesk"),
	}
}

type zendeskVia struct {
	Channel string `json:"channel"`
}

type zendeskTicket struct {
	ID          int64      `json:"id"`
	ResultType  string     `json:"result_type,omitempty"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    *string    `json:"priority"`
	RequesterID int64      `json:"requester_id"`
	AssigneeID  *int64     `json:"assignee_id"`
	Tags        []string   `json:"tags"`
	Via         zendeskVia `json:"via"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type zendeskUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type zendeskComment struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

type zendeskCommentInput struct {
	Body   string `json:"body"`
	Public bool   `json:"public"`
}

type zendeskTicketUpdate struct {
	Tags       []string             `json:"tags,omitempty"`
	Status     string               `json:"status,omitempty"`
	Priority   string               `json:"priority,omitempty"`
	AssigneeID *int64               `json:"assignee_id,omitempty"`
	Comment    *zendeskCommentInput `json:"comment,omitempty"`
}

type ticketEnvelope struct {
	Ticket zendeskTicket `json:"ticket"`
	Users  []zendeskUser `json:"users"`
}

type searchEnvelope struct {
	Results []zendeskTicket `json:"results"`
	Users   []zendeskUser   `json:"users"`
}

type commentsEnvelope struct {
	Comments []zendeskComment `json:"comments"`
}

type updateEnvelope struct {
	Ticket zendeskTicketUpdate `json:"ticket"`
}

func (c *ZendeskClient) SearchOpenByRequester(ctx context.Context, email string) ([]domain.Ticket, error) {
	query := fmt.Sprintf("type:ticket requester:%s -status:solved -status:closed -tags:%s -tags:%s",
		email, TagMergedSource, TagProactiveAlert)
	path := "/search.json?query=" + url.QueryEscape(query) + "&sort_by=created_at&sort_order=desc&include=tickets(users)"

	var resp searchEnvelope
	if err := c.do(ctx, fiber.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	users := indexUsers(resp.Users)
	out := make([]domain.Ticket, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.ResultType != "" && result.ResultType != "ticket" {
			continue
		}
		ticket := result.toDomain(users)
		if ticket.RequesterEmail == "" {
			ticket.RequesterEmail = email
		}
		out = append(out, ticket)
	}
	return out, nil
}

func (c *ZendeskClient) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var resp ticketEnvelope
	if err := c.do(ctx, fiber.MethodGet, ticketPath(id)+"?include=users", nil, &resp); err != nil {
		return nil, err
	}
	ticket := resp.Ticket.toDomain(indexUsers(resp.Users))
	return &ticket, nil
}

func (c *ZendeskClient) GetComments(ctx context.Context, id string) ([]domain.Comment, error) {
	var resp commentsEnvelope
	if err := c.do(ctx, fiber.MethodGet, "/tickets/"+url.PathEscape(id)+"/comments.json?sort_order=asc", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(resp.Comments))
	for _, comment := range resp.Comments {
		out = append(out, domain.Comment{
			ID:        strconv.FormatInt(comment.ID, 10),
			AuthorID:  strconv.FormatInt(comment.AuthorID, 10),
			Body:      comment.Body,
			Public:    comment.Public,
			CreatedAt: comment.CreatedAt,
		})
	}
	return out, nil
}

func (c *ZendeskClient) UpdateTicket(ctx context.Context, id string, update domain.TicketUpdate) (*domain.Ticket, error) {
	payload, err := toZendeskUpdate(update)
	if err != nil {
		return nil, err
	}
	var resp ticketEnvelope
	if err := c.do(ctx, fiber.MethodPut, ticketPath(id), updateEnvelope{Ticket: payload}, &resp); err != nil {
		return nil, err
	}
	ticket := resp.Ticket.toDomain(nil)
	return &ticket, nil
}

func (c *ZendeskClient) BulkUpdate(ctx context.Context, ids []string, update domain.TicketUpdate) error {
	if len(ids) == 0 {
		return nil
	}
	payload, err := toZendeskUpdate(update)
	if err != nil {
		return err
	}
	escaped := make([]string, 0, len(ids))
	for _, id := range ids {
		escaped = append(escaped, url.QueryEscape(id))
	}
	path := "/tickets/update_many.json?ids=" + strings.Join(escaped, ",")
	return c.do(ctx, fiber.MethodPut, path, updateEnvelope{Ticket: payload}, nil)
}

// do issues one request. fiber's agent has no context support, so the
// context is checked up front and its deadline caps the request timeout.
func (c *ZendeskClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	agent.BasicAuth(c.email+"/token", c.token)
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("ticket store %s %s: %w", method, path, err)
	}

	started := time.Now()
	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("ticket store %s %s: %w", method, path, err)
	}
	c.logger.Debug("request complete",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(started)))

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return &APIError{Method: method, Path: path, StatusCode: status, Body: string(respBody)}
	}
	if out == nil || status == fiber.StatusNoContent || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (t zendeskTicket) toDomain(users map[int64]zendeskUser) domain.Ticket {
	ticket := domain.Ticket{
		ID:          strconv.FormatInt(t.ID, 10),
		Subject:     t.Subject,
		Description: t.Description,
		Status:      domain.TicketStatus(t.Status),
		RequesterID: strconv.FormatInt(t.RequesterID, 10),
		Channel:     t.Via.Channel,
		Tags:        append([]string(nil), t.Tags...),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Priority != nil {
		ticket.Priority = domain.TicketPriority(*t.Priority)
	}
	if t.AssigneeID != nil {
		ticket.AssigneeID = strconv.FormatInt(*t.AssigneeID, 10)
	}
	if user, ok := users[t.RequesterID]; ok {
		ticket.RequesterEmail = user.Email
		ticket.RequesterName = user.Name
	}
	return ticket
}

func toZendeskUpdate(update domain.TicketUpdate) (zendeskTicketUpdate, error) {
	out := zendeskTicketUpdate{Tags: update.Tags}
	if update.Status != nil {
		out.Status = string(*update.Status)
	}
	if update.Priority != nil {
		out.Priority = string(*update.Priority)
	}
	if update.AssigneeID != nil && *update.AssigneeID != "" {
		assignee, err := strconv.ParseInt(*update.AssigneeID, 10, 64)
		if err != nil {
			return out, fmt.Errorf("invalid assignee id %q: %w", *update.AssigneeID, err)
		}
		out.AssigneeID = &assignee
	}
	if update.Comment != nil {
		out.Comment = &zendeskCommentInput{Body: update.Comment.Body, Public: update.Comment.Public}
	}
	return out, nil
}

func indexUsers(users []zendeskUser) map[int64]zendeskUser {
	out := make(map[int64]zendeskUser, len(users))
	for _, user := range users {
		out[user.ID] = user
	}
	return out
}

func ticketPath(id string) string {
	return "/tickets/" + url.PathEscape(id) + ".json"
}
