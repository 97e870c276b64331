package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMergeScheduled  EventType = "merge_scheduled"
	EventMergeExecuted   EventType = "merge_executed"
	EventMergeFailed     EventType = "merge_failed"
	EventOutboundBlocked EventType = "outbound_blocked"
	EventLockContended   EventType = "lock_contended"
	EventReplyRedirected EventType = "reply_redirected"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.SubjectType `json:"type"`
	ID   string             `json:"id,omitempty"`
}

// SystemActor is used for timer-driven work.
var SystemActor = Actor{Type: domain.SubjectTypeSystem}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// MergeScheduledPayload payload.
type MergeScheduledPayload struct {
	RequesterEmail string    `json:"requester_email"`
	TicketIDs      []string  `json:"ticket_ids"`
	Deadline       time.Time `json:"deadline"`
	Rescheduled    bool      `json:"rescheduled"`
}

// MergeExecutedPayload payload.
type MergeExecutedPayload struct {
	RequesterEmail string                 `json:"requester_email"`
	SourceTickets  []string               `json:"source_tickets"`
	UniqueIssues   []domain.IssueCategory `json:"unique_issues"`
	Priority       domain.TicketPriority  `json:"priority"`
	Assignee       string                 `json:"assignee,omitempty"`
}

// MergeFailedPayload payload.
type MergeFailedPayload struct {
	RequesterEmail string `json:"requester_email"`
	Error          string `json:"error"`
}

// OutboundBlockedPayload payload.
type OutboundBlockedPayload struct {
	RequesterEmail string   `json:"requester_email"`
	Reasons        []string `json:"reasons"`
}

// LockContendedPayload payload.
type LockContendedPayload struct {
	RequestedBy    string `json:"requested_by"`
	HeldBy         string `json:"held_by"`
	LockAgeMinutes int    `json:"lock_age_minutes"`
}

// ReplyRedirectedPayload payload.
type ReplyRedirectedPayload struct {
	TargetTicket string `json:"target_ticket"`
}
