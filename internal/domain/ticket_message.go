package domain

import "time"

// Comment is a single entry in a ticket conversation.
type Comment struct {
	ID        string
	AuthorID  string
	Body      string
	Public    bool
	CreatedAt time.Time
}

// AuthorRole labels a comment relative to the ticket's requester.
type AuthorRole string

const (
	AuthorRoleCustomer AuthorRole = "Customer"
	AuthorRoleAgent    AuthorRole = "Agent"
)

// RoleFor returns the comment author's role on a ticket requested by requesterID.
func (c Comment) RoleFor(requesterID string) AuthorRole {
	if c.AuthorID != "" && c.AuthorID == requesterID {
		return AuthorRoleCustomer
	}
	return AuthorRoleAgent
}
