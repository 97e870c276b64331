package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	s := NewRedisStore(client, "test:"+uuid.NewString()+":")

	require.NoError(t, s.Set(ctx, "lock:1", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "lock:2", []byte("b"), time.Minute))
	require.NoError(t, s.Set(ctx, "other", []byte("c"), time.Minute))

	val, err := s.Get(ctx, "lock:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), val)

	locks, err := s.List(ctx, "lock:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"lock:1": []byte("a"), "lock:2": []byte("b")}, locks)

	require.NoError(t, s.Delete(ctx, "lock:1"))
	_, err = s.Get(ctx, "lock:1")
	assert.ErrorIs(t, err, ErrNotFound)
}
