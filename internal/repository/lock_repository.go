package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/kv"
)

const lockKeyPrefix = "lock:"

// LockRepository stores agent locks keyed by ticket id.
type LockRepository interface {
	Get(ctx context.Context, ticketID string) (*domain.AgentLock, error)
	Put(ctx context.Context, lock domain.AgentLock, ttl time.Duration) error
	Count(ctx context.Context) (int, error)
}

type lockRepository struct {
	store kv.Store
}

// NewLockRepository builds repository.
func NewLockRepository(store kv.Store) LockRepository {
	return &lockRepository{store: store}
}

// Get returns nil, nil when no lock is recorded for the ticket.
func (r *lockRepository) Get(ctx context.Context, ticketID string) (*domain.AgentLock, error) {
	raw, err := r.store.Get(ctx, lockKeyPrefix+ticketID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lock domain.AgentLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", ticketID, err)
	}
	return &lock, nil
}

func (r *lockRepository) Put(ctx context.Context, lock domain.AgentLock, ttl time.Duration) error {
	raw, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("encode lock %s: %w", lock.TicketID, err)
	}
	return r.store.Set(ctx, lockKeyPrefix+lock.TicketID, raw, ttl)
}

func (r *lockRepository) Count(ctx context.Context) (int, error) {
	locks, err := r.store.List(ctx, lockKeyPrefix)
	if err != nil {
		return 0, err
	}
	return len(locks), nil
}
