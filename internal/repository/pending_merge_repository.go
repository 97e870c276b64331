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

const pendingMergePrefix = "merge:pending:"

// PendingMergeRepository publishes the pending-merge table so every
// instance can report it.
type PendingMergeRepository interface {
	Put(ctx context.Context, pending domain.PendingMerge, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.PendingMerge, error)
	Delete(ctx context.Context, email string) error
	List(ctx context.Context) ([]domain.PendingMerge, error)
}

type pendingMergeRepository struct {
	store kv.Store
}

// NewPendingMergeRepository builds repository.
func NewPendingMergeRepository(store kv.Store) PendingMergeRepository {
	return &pendingMergeRepository{store: store}
}

func (r *pendingMergeRepository) Put(ctx context.Context, pending domain.PendingMerge, ttl time.Duration) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending merge: %w", err)
	}
	return r.store.Set(ctx, pendingMergePrefix+pending.RequesterEmail, raw, ttl)
}

// Get returns nil, nil when nothing is pending for email.
func (r *pendingMergeRepository) Get(ctx context.Context, email string) (*domain.PendingMerge, error) {
	raw, err := r.store.Get(ctx, pendingMergePrefix+email)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pending domain.PendingMerge
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending merge: %w", err)
	}
	return &pending, nil
}

func (r *pendingMergeRepository) Delete(ctx context.Context, email string) error {
	return r.store.Delete(ctx, pendingMergePrefix+email)
}

func (r *pendingMergeRepository) List(ctx context.Context) ([]domain.PendingMerge, error) {
	raw, err := r.store.List(ctx, pendingMergePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingMerge, 0, len(raw))
	for key, value := range raw {
		var pending domain.PendingMerge
		if err := json.Unmarshal(value, &pending); err != nil {
			return nil, fmt.Errorf("decode pending merge %s: %w", key, err)
		}
		out = append(out, pending)
	}
	return out, nil
}
