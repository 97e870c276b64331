package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// TicketID accepts both string and numeric ids; help desk triggers send either.
type TicketID string

func (id *TicketID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TicketID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ticket id must be a string or number: %w", err)
	}
	*id = TicketID(n.String())
	return nil
}

func (id TicketID) String() string {
	return string(id)
}

// TicketCreatedRequest payload.
type TicketCreatedRequest struct {
	TicketID       TicketID `json:"ticket_id"`
	RequesterEmail string   `json:"requester_email"`
}

// MergeRequest payload.
type MergeRequest struct {
	RequesterEmail string `json:"requester_email"`
}

// TicketUpdatedRequest payload.
type TicketUpdatedRequest struct {
	TicketID TicketID `json:"ticket_id"`
}

// OutboundGateRequest payload.
type OutboundGateRequest struct {
	TicketID       TicketID `json:"ticket_id"`
	RequesterEmail string   `json:"requester_email"`
	AgentResponse  string   `json:"agent_response"`
	Override       bool     `json:"override"`
}

// ProactiveSentRequest payload.
type ProactiveSentRequest struct {
	RecipientEmail string   `json:"recipient_email"`
	TicketID       TicketID `json:"ticket_id"`
	Channel        string   `json:"channel"`
	SignalType     string   `json:"signal_type"`
	MessageID      string   `json:"message_id"`
}

// LockRequest payload.
type LockRequest struct {
	TicketID TicketID `json:"ticket_id"`
	AgentID  string   `json:"agent_id"`
}

// VIPCheckRequest payload.
type VIPCheckRequest struct {
	TicketID TicketID `json:"ticket_id"`
}

// CheckDuplicateRequest payload.
type CheckDuplicateRequest struct {
	TicketID       TicketID `json:"ticket_id"`
	RequesterEmail string   `json:"requester_email"`
	Subject        string   `json:"subject"`
}

// ScheduleResponse is returned by ticket-created.
type ScheduleResponse struct {
	Action      string     `json:"action"`
	Message     string     `json:"message,omitempty"`
	TicketID    string     `json:"ticket_id,omitempty"`
	TicketCount int        `json:"ticket_count,omitempty"`
	TicketIDs   []string   `json:"ticket_ids,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// MergeResponse is returned by a forced merge.
type MergeResponse struct {
	Action        domain.MergeAction              `json:"action"`
	Message       string                          `json:"message,omitempty"`
	TargetTicket  string                          `json:"target_ticket,omitempty"`
	SourceTickets []string                        `json:"source_tickets,omitempty"`
	Issues        map[string]domain.IssueCategory `json:"issues,omitempty"`
	UniqueIssues  []domain.IssueCategory          `json:"unique_issues,omitempty"`
	Priority      domain.TicketPriority           `json:"priority,omitempty"`
	Assignee      string                          `json:"assignee,omitempty"`
	Error         string                          `json:"error,omitempty"`
}

// UpdateResponse is returned by ticket-updated.
type UpdateResponse struct {
	Action       string `json:"action"`
	TicketID     string `json:"ticket_id,omitempty"`
	SourceTicket string `json:"source_ticket,omitempty"`
	TargetTicket string `json:"target_ticket,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WarningResponse is one outbound gate finding.
type WarningResponse struct {
	Type             string                 `json:"type"`
	Message          string                 `json:"message"`
	Blocking         bool                   `json:"blocking"`
	LastSent         *time.Time             `json:"last_sent,omitempty"`
	Missed           []domain.IssueCategory `json:"missed,omitempty"`
	IssueCount       int                    `json:"issue_count,omitempty"`
	AddressedCount   *int                   `json:"addressed_count,omitempty"`
	ProactiveDetails *domain.CommEntry      `json:"proactive_details,omitempty"`
	Count            int                    `json:"count,omitempty"`
}

// GateResponse is returned by outbound-gate.
type GateResponse struct {
	Allow        bool              `json:"allow"`
	Warnings     []WarningResponse `json:"warnings"`
	TicketID     string            `json:"ticket_id"`
	OverrideUsed bool              `json:"override_used"`
	Error        string            `json:"error,omitempty"`
}

// ProactiveSentResponse acknowledges a logged proactive send.
type ProactiveSentResponse struct {
	Logged bool             `json:"logged"`
	Entry  domain.CommEntry `json:"entry"`
}

// LockResponse is returned by lock.
type LockResponse struct {
	Locked         bool   `json:"locked"`
	TicketID       string `json:"ticket_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Message        string `json:"message,omitempty"`
	LockedBy       string `json:"locked_by,omitempty"`
	LockAgeMinutes *int   `json:"lock_age_minutes,omitempty"`
	Error          string `json:"error,omitempty"`
}

// VIPResponse is returned by vip-check.
type VIPResponse struct {
	IsVIP    bool                  `json:"is_vip"`
	TicketID string                `json:"ticket_id"`
	Priority domain.TicketPriority `json:"priority,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// DuplicateResponse is returned by check-duplicate.
type DuplicateResponse struct {
	IsDuplicate    bool   `json:"is_duplicate"`
	TicketID       string `json:"ticket_id,omitempty"`
	ClosedTicket   string `json:"closed_ticket,omitempty"`
	OriginalTicket string `json:"original_ticket,omitempty"`
	Error          string `json:"error,omitempty"`
}

// MergeRecordResponse is one executed merge from the audit history.
type MergeRecordResponse struct {
	ID            string                          `json:"id"`
	TargetTicket  string                          `json:"target_ticket"`
	SourceTickets []string                        `json:"source_tickets"`
	Issues        map[string]domain.IssueCategory `json:"issues"`
	Priority      domain.TicketPriority           `json:"priority"`
	Assignee      string                          `json:"assignee,omitempty"`
	ExecutedAt    time.Time                       `json:"executed_at"`
}

// MergesResponse lists the pending and executed merges of a requester.
type MergesResponse struct {
	RequesterEmail string                `json:"requester_email"`
	Pending        *domain.PendingMerge  `json:"pending"`
	HistoryEnabled bool                  `json:"history_enabled"`
	History        []MergeRecordResponse `json:"history"`
}

// StatusResponse is returned by status.
type StatusResponse struct {
	Status        string    `json:"status"`
	PendingMerges int       `json:"pending_merges"`
	ActiveLocks   int       `json:"active_locks"`
	Timestamp     time.Time `json:"timestamp"`
	Error         string    `json:"error,omitempty"`
}
