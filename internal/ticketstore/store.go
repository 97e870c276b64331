// Package ticketstore is the read/write boundary to the external help desk.
// It holds no business rules; callers decide what to write.
package ticketstore

import (
	"context"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// Tags excluded from open-ticket searches.
const (
	TagMergedSource   = "merged_source"
	TagProactiveAlert = "proactive_alert"
)

// Store is implemented by every ticket backend.
type Store interface {
	// SearchOpenByRequester returns the requester's open tickets, newest
	// first, excluding merged sources and proactive alerts.
	SearchOpenByRequester(ctx context.Context, email string) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	// GetComments returns the conversation oldest first.
	GetComments(ctx context.Context, id string) ([]domain.Comment, error)
	UpdateTicket(ctx context.Context, id string, update domain.TicketUpdate) (*domain.Ticket, error)
	BulkUpdate(ctx context.Context, ids []string, update domain.TicketUpdate) error
}

// AddInternalNote writes a private comment on the ticket.
func AddInternalNote(ctx context.Context, s Store, id, body string) error {
	_, err := s.UpdateTicket(ctx, id, domain.TicketUpdate{
		Comment: &domain.CommentInput{Body: body, Public: false},
	})
	return err
}

// AddPublicComment writes a customer-visible comment on the ticket.
func AddPublicComment(ctx context.Context, s Store, id, body string) error {
	_, err := s.UpdateTicket(ctx, id, domain.TicketUpdate{
		Comment: &domain.CommentInput{Body: body, Public: true},
	})
	return err
}
