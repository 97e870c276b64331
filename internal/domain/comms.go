package domain

import "time"

// CommSource identifies what produced an outbound message.
type CommSource string

const (
	CommSourceAgentResponse CommSource = "agent_response"
	CommSourceProactive     CommSource = "proactive"
	CommSourceSystem        CommSource = "system"
)

// CommEntry is one outbound message recorded in the communication log.
type CommEntry struct {
	ID           string     `json:"id"`
	Recipient    string     `json:"recipient"`
	Channel      string     `json:"channel"`
	Source       CommSource `json:"source"`
	TicketID     string     `json:"ticket_id"`
	SignalType   string     `json:"signal_type,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	MessageID    string     `json:"message_id,omitempty"`
}
