package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// DefaultCommsRetention is how long outbound messages stay in the log.
const DefaultCommsRetention = 24 * time.Hour

// CommsLogRepository records outbound messages per recipient. It is the only
// input to rate-limiting decisions.
type CommsLogRepository interface {
	// Append stamps entry with an id and dispatch time when missing, stores
	// it and drops entries older than the retention window.
	Append(ctx context.Context, entry *domain.CommEntry) error
	// Since returns the recipient's entries dispatched strictly after since,
	// oldest first.
	Since(ctx context.Context, recipient string, since time.Time) ([]domain.CommEntry, error)
	// Purge drops expired entries without appending.
	Purge(ctx context.Context) (int, error)
}

type memoryCommsLog struct {
	clock     clock.Clock
	retention time.Duration

	mu      sync.RWMutex
	entries []domain.CommEntry
}

// NewMemoryCommsLog creates the process-local log.
func NewMemoryCommsLog(c clock.Clock, retention time.Duration) CommsLogRepository {
	if c == nil {
		c = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultCommsRetention
	}
	return &memoryCommsLog{clock: c, retention: retention}
}

func (l *memoryCommsLog) Append(_ context.Context, entry *domain.CommEntry) error {
	stampCommEntry(entry, l.clock.Now())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	l.trimLocked()
	return nil
}

func (l *memoryCommsLog) Since(_ context.Context, recipient string, since time.Time) ([]domain.CommEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.CommEntry
	for _, entry := range l.entries {
		if entry.Recipient == recipient && entry.DispatchedAt.After(since) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (l *memoryCommsLog) Purge(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimLocked(), nil
}

// trimLocked drops the expired prefix. Entries are kept in insertion order,
// which is also dispatch order.
func (l *memoryCommsLog) trimLocked() int {
	cutoff := l.clock.Now().Add(-l.retention)
	n := 0
	for n < len(l.entries) && l.entries[n].DispatchedAt.Before(cutoff) {
		n++
	}
	if n > 0 {
		l.entries = append(l.entries[:0:0], l.entries[n:]...)
	}
	return n
}

func stampCommEntry(entry *domain.CommEntry, now time.Time) {
	if entry.ID == "" {
		entry.ID = "comms_" + uuid.NewString()
	}
	if entry.DispatchedAt.IsZero() {
		entry.DispatchedAt = now
	}
}
