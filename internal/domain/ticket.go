package domain

import "time"

// TicketStatus enumerates the help desk lifecycle states.
type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "new"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusHold    TicketStatus = "hold"
	TicketStatusSolved  TicketStatus = "solved"
	TicketStatusClosed  TicketStatus = "closed"
	TicketStatusDeleted TicketStatus = "deleted"
)

// IsOpen reports whether the status still counts as an open contact.
func (s TicketStatus) IsOpen() bool {
	switch s {
	case TicketStatusSolved, TicketStatusClosed, TicketStatusDeleted:
		return false
	default:
		return true
	}
}

// TicketPriority enumerates help desk urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:    1,
	TicketPriorityNormal: 2,
	TicketPriorityHigh:   3,
	TicketPriorityUrgent: 4,
}

// Rank orders priorities; unknown or empty priorities rank zero.
func (p TicketPriority) Rank() int {
	return priorityRank[p]
}

// Ticket is the engine's transient view of a help desk ticket.
type Ticket struct {
	ID             string
	Subject        string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	RequesterID    string
	RequesterEmail string
	RequesterName  string
	AssigneeID     string
	Channel        string
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasTag reports whether the ticket carries tag.
func (t *Ticket) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// TicketUpdate is a partial write against the ticket store. Nil fields are left untouched.
type TicketUpdate struct {
	Tags       []string
	Status     *TicketStatus
	Priority   *TicketPriority
	AssigneeID *string
	Comment    *CommentInput
}

// CommentInput is a comment attached to a ticket update.
type CommentInput struct {
	Body   string
	Public bool
}
