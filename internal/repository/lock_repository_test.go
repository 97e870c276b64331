package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/kv"
)

func TestLockRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	repo := NewLockRepository(kv.NewMemoryStore(c))

	missing, err := repo.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Put(ctx, domain.AgentLock{TicketID: "42", AgentID: "agent-a", LockedAt: epoch}, time.Hour))
	lock, err := repo.Get(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "agent-a", lock.AgentID)
	assert.True(t, lock.LockedAt.Equal(epoch))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	c.Advance(time.Hour)
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPendingMergeRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingMergeRepository(kv.NewMemoryStore(clock.Fake(epoch)))

	pending := domain.PendingMerge{RequesterEmail: "a@x.com", TicketID: "2", ScheduledAt: epoch, Deadline: epoch.Add(2 * time.Minute)}
	require.NoError(t, repo.Put(ctx, pending, 3*time.Minute))

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.TicketID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "a@x.com"))
	got, err = repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}
