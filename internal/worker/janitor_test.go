package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/kv"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/repository"
)

func purgedTotal(t *testing.T, metrics *observability.Metrics, store string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "reactive_engine_janitor_purged_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "store" && label.GetValue() == store {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestJanitorRunOnce(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	state := kv.NewMemoryStore(c)
	comms := repository.NewMemoryCommsLog(c, repository.DefaultCommsRetention)
	metrics := observability.NewMetrics(nil)

	require.NoError(t, state.Set(ctx, "lock:1", []byte("a"), time.Minute))
	require.NoError(t, state.Set(ctx, "lock:2", []byte("b"), 48*time.Hour))
	require.NoError(t, comms.Append(ctx, &domain.CommEntry{Recipient: "a@x.com", Channel: "email", Source: domain.CommSourceAgentResponse}))

	janitor := NewJanitor(JanitorDependencies{Comms: comms, State: state, Metrics: metrics})
	assert.Equal(t, JanitorReport{}, janitor.RunOnce(ctx))

	c.Advance(25 * time.Hour)
	report := janitor.RunOnce(ctx)
	assert.Equal(t, JanitorReport{CommsPurged: 1, StatePurged: 1}, report)
	assert.Equal(t, float64(1), purgedTotal(t, metrics, "comms_log"))
	assert.Equal(t, float64(1), purgedTotal(t, metrics, "state"))

	remaining, err := state.List(ctx, "lock:")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestJanitorWithoutSweeper(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	janitor := NewJanitor(JanitorDependencies{Comms: repository.NewMemoryCommsLog(c, time.Hour)})
	assert.Equal(t, JanitorReport{}, janitor.RunOnce(context.Background()))
}

func TestJanitorStartRejectsBadSchedule(t *testing.T) {
	janitor := NewJanitor(JanitorDependencies{Schedule: "every now and then"})
	assert.Error(t, janitor.Start())
}

func TestJanitorStartAndStop(t *testing.T) {
	janitor := NewJanitor(JanitorDependencies{Schedule: "@every 1h"})
	require.NoError(t, janitor.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	janitor.Stop(ctx)
}
