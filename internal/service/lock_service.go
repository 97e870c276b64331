package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/repository"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

const defaultLockStale = 30 * time.Minute

// LockResult is the outcome of a lock request.
type LockResult struct {
	Locked         bool
	TicketID       string
	AgentID        string
	Message        string
	LockedBy       string
	LockAgeMinutes int
	Error          string
}

// LockService is a soft, advisory lock table for agents drafting replies.
// Locks are never released explicitly; they go stale or get overwritten.
type LockService struct {
	locks      repository.LockRepository
	store      ticketstore.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	stale      time.Duration

	tickets keyedMutex
}

// LockDependencies bundles collaborators for the lock service.
type LockDependencies struct {
	LockRepo   repository.LockRepository
	Store      ticketstore.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
	StaleAfter time.Duration
}

// NewLockService constructs the service.
func NewLockService(deps LockDependencies) *LockService {
	s := &LockService{
		locks:      deps.LockRepo,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		stale:      deps.StaleAfter,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("locks")
	if s.stale <= 0 {
		s.stale = defaultLockStale
	}
	return s
}

// AcquireLock grants the ticket to agentID unless another agent holds a
// fresh lock on it. Re-acquiring one's own lock refreshes it.
func (s *LockService) AcquireLock(ctx context.Context, ticketID, agentID string) (*LockResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	agentID = strings.TrimSpace(agentID)
	if ticketID == "" || agentID == "" {
		return nil, missing("ticket_id", "agent_id")
	}
	log := s.logger.With(zap.String("ticket_id", ticketID), zap.String("agent_id", agentID))

	unlock := s.tickets.Lock(ticketID)
	defer unlock()

	now := s.clock.Now()
	existing, err := s.locks.Get(ctx, ticketID)
	if err != nil {
		log.Error("read lock failed", zap.Error(err))
		s.metrics.LockAttempt("error")
		return &LockResult{TicketID: ticketID, AgentID: agentID, Error: err.Error()}, nil
	}
	if existing != nil && existing.AgentID != agentID {
		age := now.Sub(existing.LockedAt)
		if age < s.stale {
			minutes := int(math.Round(age.Minutes()))
			log.Info("lock held by another agent", zap.String("locked_by", existing.AgentID), zap.Int("lock_age_minutes", minutes))
			s.metrics.LockAttempt("denied")
			s.publish(ctx, events.New(events.EventLockContended, ticketID, events.Actor{Type: domain.SubjectTypeAgent, ID: agentID}, now,
				events.LockContendedPayload{RequestedBy: agentID, HeldBy: existing.AgentID, LockAgeMinutes: minutes}))
			return &LockResult{
				TicketID: ticketID,
				Message: fmt.Sprintf("Ticket is being worked by agent %s (%d min ago). Coordinate before responding.",
					existing.AgentID, minutes),
				LockedBy:       existing.AgentID,
				LockAgeMinutes: minutes,
			}, nil
		}
	}

	lock := domain.AgentLock{TicketID: ticketID, AgentID: agentID, LockedAt: now}
	if err := s.locks.Put(ctx, lock, s.stale); err != nil {
		log.Error("write lock failed", zap.Error(err))
		s.metrics.LockAttempt("error")
		return &LockResult{TicketID: ticketID, AgentID: agentID, Error: err.Error()}, nil
	}
	s.metrics.LockAttempt("granted")
	result := &LockResult{Locked: true, TicketID: ticketID, AgentID: agentID}

	note := fmt.Sprintf("Ticket locked by agent %s at %s.", agentID, now.UTC().Format(time.RFC3339))
	if err := ticketstore.AddInternalNote(ctx, s.store, ticketID, note); err != nil {
		// the lock stands; only the audit trail is missing
		log.Warn("lock audit note failed", zap.Error(err))
		result.Error = err.Error()
	}
	return result, nil
}

// Holder returns the fresh lock on the ticket, or nil.
func (s *LockService) Holder(ctx context.Context, ticketID string) (*domain.AgentLock, error) {
	lock, err := s.locks.Get(ctx, ticketID)
	if err != nil || lock == nil {
		return nil, err
	}
	if s.clock.Now().Sub(lock.LockedAt) >= s.stale {
		return nil, nil
	}
	return lock, nil
}

// ActiveCount returns the number of locks that have not expired.
func (s *LockService) ActiveCount(ctx context.Context) (int, error) {
	n, err := s.locks.Count(ctx)
	if err != nil {
		s.logger.Warn("count locks failed", zap.Error(err))
		return 0, fmt.Errorf("count locks: %w", err)
	}
	return n, nil
}

func (s *LockService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.logger, event)
}
