package ticketstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// Op names a store operation for failure injection.
type Op string

const (
	OpSearch   Op = "search"
	OpGet      Op = "get"
	OpComments Op = "comments"
	OpUpdate   Op = "update"
	OpBulk     Op = "bulk"
)

// MemoryStore is a process-local ticket backend used in tests and local runs
// without help desk credentials.
type MemoryStore struct {
	clock    clock.Clock
	authorID string

	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	comments map[string][]domain.Comment
	failures map[string]error
	updates  map[string]int
	seq      int
}

// NewMemoryStore creates an empty store. Comments it writes are authored by
// authorID.
func NewMemoryStore(c clock.Clock, authorID string) *MemoryStore {
	if c == nil {
		c = clock.Real()
	}
	if authorID == "" {
		authorID = "reactive-engine"
	}
	return &MemoryStore{
		clock:    c,
		authorID: authorID,
		tickets:  make(map[string]*domain.Ticket),
		comments: make(map[string][]domain.Comment),
		failures: make(map[string]error),
		updates:  make(map[string]int),
	}
}

// Put inserts or replaces a ticket along with its existing conversation.
func (m *MemoryStore) Put(ticket domain.Ticket, comments ...domain.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = m.clock.Now()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusNew
	}
	stored := cloneTicket(ticket)
	m.tickets[ticket.ID] = &stored
	for _, comment := range comments {
		m.appendCommentLocked(ticket.ID, comment)
	}
}

// AddComment appends a comment as if it arrived through the help desk.
func (m *MemoryStore) AddComment(ticketID string, comment domain.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCommentLocked(ticketID, comment)
}

// Fail makes op on id return err until cleared with a nil err. An empty id
// matches every ticket.
func (m *MemoryStore) Fail(op Op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failureKey(op, id)
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// Ticket returns a snapshot of the stored ticket.
func (m *MemoryStore) Ticket(id string) (domain.Ticket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return domain.Ticket{}, false
	}
	return cloneTicket(*ticket), true
}

// Notes returns the internal comments on a ticket, oldest first.
func (m *MemoryStore) Notes(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, comment := range m.comments[id] {
		if !comment.Public {
			out = append(out, comment.Body)
		}
	}
	return out
}

// UpdateCount reports how many writes a ticket has received.
func (m *MemoryStore) UpdateCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates[id]
}

func (m *MemoryStore) SearchOpenByRequester(_ context.Context, email string) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failureLocked(OpSearch, ""); err != nil {
		return nil, err
	}
	var out []domain.Ticket
	for _, ticket := range m.tickets {
		if !strings.EqualFold(ticket.RequesterEmail, email) || !ticket.Status.IsOpen() {
			continue
		}
		if ticket.HasTag(TagMergedSource) || ticket.HasTag(TagProactiveAlert) {
			continue
		}
		out = append(out, cloneTicket(*ticket))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failureLocked(OpGet, id); err != nil {
		return nil, err
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	out := cloneTicket(*ticket)
	return &out, nil
}

func (m *MemoryStore) GetComments(_ context.Context, id string) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failureLocked(OpComments, id); err != nil {
		return nil, err
	}
	if _, ok := m.tickets[id]; !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return append([]domain.Comment(nil), m.comments[id]...), nil
}

func (m *MemoryStore) UpdateTicket(_ context.Context, id string, update domain.TicketUpdate) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked(OpUpdate, id); err != nil {
		return nil, err
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	m.applyLocked(ticket, update)
	out := cloneTicket(*ticket)
	return &out, nil
}

func (m *MemoryStore) BulkUpdate(_ context.Context, ids []string, update domain.TicketUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked(OpBulk, ""); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := m.tickets[id]; !ok {
			return fmt.Errorf("ticket %s: %w", id, ErrNotFound)
		}
	}
	for _, id := range ids {
		m.applyLocked(m.tickets[id], update)
	}
	return nil
}

func (m *MemoryStore) applyLocked(ticket *domain.Ticket, update domain.TicketUpdate) {
	if update.Tags != nil {
		ticket.Tags = append([]string(nil), update.Tags...)
	}
	if update.Status != nil {
		ticket.Status = *update.Status
	}
	if update.Priority != nil {
		ticket.Priority = *update.Priority
	}
	if update.AssigneeID != nil {
		ticket.AssigneeID = *update.AssigneeID
	}
	if update.Comment != nil {
		m.appendCommentLocked(ticket.ID, domain.Comment{
			AuthorID: m.authorID,
			Body:     update.Comment.Body,
			Public:   update.Comment.Public,
		})
	}
	ticket.UpdatedAt = m.clock.Now()
	m.updates[ticket.ID]++
}

func (m *MemoryStore) appendCommentLocked(ticketID string, comment domain.Comment) {
	m.seq++
	if comment.ID == "" {
		comment.ID = strconv.Itoa(m.seq)
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = m.clock.Now()
	}
	m.comments[ticketID] = append(m.comments[ticketID], comment)
}

func (m *MemoryStore) failureLocked(op Op, id string) error {
	if err, ok := m.failures[failureKey(op, id)]; ok {
		return err
	}
	if err, ok := m.failures[failureKey(op, "")]; ok {
		return err
	}
	return nil
}

func failureKey(op Op, id string) string {
	return string(op) + ":" + id
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Tags = append([]string(nil), t.Tags...)
	return t
}
