package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryCommsLogStampsEntries(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	log := NewMemoryCommsLog(c, 0)

	entry := &domain.CommEntry{Recipient: "a@x.com", Channel: "email", Source: domain.CommSourceAgentResponse, TicketID: "1"}
	require.NoError(t, log.Append(ctx, entry))

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, epoch, entry.DispatchedAt)
}

func TestMemoryCommsLogSinceIsStrictAndPerRecipient(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	log := NewMemoryCommsLog(c, 0)

	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))
	c.Advance(time.Minute)
	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "b@x.com"}))
	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))

	entries, err := log.Since(ctx, "a@x.com", epoch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, epoch.Add(time.Minute), entries[0].DispatchedAt)

	entries, err = log.Since(ctx, "a@x.com", epoch.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMemoryCommsLogTrimsExpiredPrefixOnAppend(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	log := NewMemoryCommsLog(c, 24*time.Hour)

	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))
	c.Advance(12 * time.Hour)
	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))
	c.Advance(12*time.Hour + time.Second)
	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "b@x.com"}))

	mem := log.(*memoryCommsLog)
	assert.Len(t, mem.entries, 2)

	entries, err := log.Since(ctx, "a@x.com", time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryCommsLogPurge(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	log := NewMemoryCommsLog(c, time.Hour)

	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))
	require.NoError(t, log.Append(ctx, &domain.CommEntry{Recipient: "a@x.com"}))
	c.Advance(2 * time.Hour)

	removed, err := log.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}
