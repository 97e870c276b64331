package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/events"
)

func TestAcquireLockStaleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)

	granted, err := f.locks.AcquireLock(ctx, "10", "agent-a")
	require.NoError(t, err)
	assert.True(t, granted.Locked)
	assert.Equal(t, []string{"Ticket locked by agent agent-a at 2026-03-01T09:00:00Z."}, f.store.Notes("10"))

	f.clock.Advance(29 * time.Minute)
	denied, err := f.locks.AcquireLock(ctx, "10", "agent-b")
	require.NoError(t, err)
	assert.False(t, denied.Locked)
	assert.Equal(t, "agent-a", denied.LockedBy)
	assert.Equal(t, 29, denied.LockAgeMinutes)
	assert.Equal(t, "Ticket is being worked by agent agent-a (29 min ago). Coordinate before responding.", denied.Message)
	assert.Len(t, f.events(events.EventLockContended), 1)

	f.clock.Advance(time.Minute + time.Second)
	taken, err := f.locks.AcquireLock(ctx, "10", "agent-b")
	require.NoError(t, err)
	assert.True(t, taken.Locked)

	holder, err := f.locks.Holder(ctx, "10")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "agent-b", holder.AgentID)
}

func TestAcquireLockSelfRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)

	_, err := f.locks.AcquireLock(ctx, "10", "agent-a")
	require.NoError(t, err)

	for _, wait := range []time.Duration{29 * time.Minute, 45 * time.Minute, 2 * time.Hour} {
		f.clock.Advance(wait)
		res, err := f.locks.AcquireLock(ctx, "10", "agent-a")
		require.NoError(t, err)
		assert.True(t, res.Locked, "after %s", wait)
	}

	f.clock.Advance(20 * time.Minute)
	denied, err := f.locks.AcquireLock(ctx, "10", "agent-b")
	require.NoError(t, err)
	assert.False(t, denied.Locked)
	assert.Equal(t, 20, denied.LockAgeMinutes)
}

func TestLockActiveCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)
	f.ticket("11", "b@x.com", "question", epoch)

	_, err := f.locks.AcquireLock(ctx, "10", "agent-a")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.locks.AcquireLock(ctx, "11", "agent-b")
	require.NoError(t, err)
	active, err := f.locks.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	f.clock.Advance(20 * time.Minute)
	active, err = f.locks.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	holder, err := f.locks.Holder(ctx, "10")
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestAcquireLockRequiresFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.locks.AcquireLock(context.Background(), "10", "")
	assert.ErrorIs(t, err, ErrMissingField)
}
