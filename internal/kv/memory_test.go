package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/clock"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewMemoryStore(c)

	require.NoError(t, s.Set(ctx, "lock:1", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "lock:2", []byte("b"), 0))

	val, err := s.Get(ctx, "lock:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), val)

	c.Advance(time.Minute)
	_, err = s.Get(ctx, "lock:1")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.List(ctx, "lock:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"lock:2": []byte("b")}, all)

	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Equal(t, 0, s.Sweep(ctx))
}

func TestMemoryStoreListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.Set(ctx, "lock:1", []byte("x"), 0))
	require.NoError(t, s.Set(ctx, "merge:pending:a@x.com", []byte("y"), 0))

	locks, err := s.List(ctx, "lock:")
	require.NoError(t, err)
	assert.Len(t, locks, 1)

	require.NoError(t, s.Delete(ctx, "lock:1"))
	locks, err = s.List(ctx, "lock:")
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(val))
}
