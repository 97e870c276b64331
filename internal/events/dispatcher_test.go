package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	var calls []string

	d.Subscribe(EventMergeExecuted, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventMergeExecuted, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventMergeFailed, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), New(EventMergeExecuted, "1", SystemActor, time.Now(), nil))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestNewStampsID(t *testing.T) {
	a := New(EventLockContended, "1", SystemActor, time.Now(), nil)
	b := New(EventLockContended, "1", SystemActor, time.Now(), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	delivered := false
	d.Subscribe(EventLockContended, func(context.Context, Event) error {
		panic("subscriber bug")
	})
	d.Subscribe(EventLockContended, func(context.Context, Event) error {
		delivered = true
		return nil
	})

	err := d.Publish(context.Background(), New(EventLockContended, "7", SystemActor, time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_contended handler panicked: subscriber bug")
	assert.True(t, delivered)
}
