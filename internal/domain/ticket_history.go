package domain

import "time"

// MergeAction names the outcome of a merge attempt.
type MergeAction string

const (
	MergeActionNone   MergeAction = "none"
	MergeActionMerged MergeAction = "merged"
)

// MergeResult is the output of one merge execution.
type MergeResult struct {
	Action        MergeAction
	Message       string
	TargetTicket  string
	SourceTickets []string
	Issues        map[string]IssueCategory
	UniqueIssues  []IssueCategory
	Priority      TicketPriority
	Assignee      string
	Error         string
}

// PendingMerge records a debounced merge waiting for its grace period to elapse.
type PendingMerge struct {
	RequesterEmail string    `json:"requester_email"`
	TicketID       string    `json:"ticket_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Deadline       time.Time `json:"deadline"`
}

// MergeRecord is the persisted audit trail of an executed merge.
type MergeRecord struct {
	ID             string
	RequesterEmail string
	TargetTicket   string
	SourceTickets  []string
	Issues         map[string]IssueCategory
	Priority       TicketPriority
	Assignee       string
	ExecutedAt     time.Time
}
