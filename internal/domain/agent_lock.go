package domain

import "time"

// AgentLock marks an agent as drafting on a ticket.
type AgentLock struct {
	TicketID string    `json:"ticket_id"`
	AgentID  string    `json:"agent_id"`
	LockedAt time.Time `json:"locked_at"`
}
