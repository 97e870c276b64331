package worker

import (
	"context"
	"fmt"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/observability"
)

const defaultJanitorSchedule = "@every 5m"

// Purger drops expired communication log entries.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Sweeper drops expired coordination state. Backends with native expiry
// do not need one.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// JanitorDependencies bundles what the janitor cleans and reports to.
type JanitorDependencies struct {
	Comms    Purger
	State    Sweeper
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Schedule string
}

// JanitorReport counts what one pass removed.
type JanitorReport struct {
	CommsPurged int
	StatePurged int
}

// Janitor periodically trims expired state so idle recipients and stale
// locks do not accumulate in process memory.
type Janitor struct {
	comms    Purger
	state    Sweeper
	metrics  *observability.Metrics
	logger   *zap.Logger
	schedule string
	cron     *rcron.Cron
}

// NewJanitor constructs the janitor. It does nothing until Start.
func NewJanitor(deps JanitorDependencies) *Janitor {
	j := &Janitor{
		comms:    deps.Comms,
		state:    deps.State,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		schedule: deps.Schedule,
	}
	if j.logger == nil {
		j.logger = zap.NewNop()
	}
	j.logger = j.logger.Named("janitor")
	if j.schedule == "" {
		j.schedule = defaultJanitorSchedule
	}
	j.cron = rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	return j
}

// Start registers the sweep on the configured schedule and starts the cron runner.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("register janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts the schedule and waits for a running pass or ctx, whichever ends first.
func (j *Janitor) Stop(ctx context.Context) {
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		j.logger.Warn("janitor stop timed out waiting for running pass")
	}
}

// RunOnce performs a single cleanup pass.
func (j *Janitor) RunOnce(ctx context.Context) JanitorReport {
	var report JanitorReport
	if j.comms != nil {
		n, err := j.comms.Purge(ctx)
		if err != nil {
			j.logger.Warn("purge comms log failed", zap.Error(err))
		}
		report.CommsPurged = n
		j.metrics.JanitorPurged("comms_log", n)
	}
	if j.state != nil {
		report.StatePurged = j.state.Sweep(ctx)
		j.metrics.JanitorPurged("state", report.StatePurged)
	}
	if report.CommsPurged > 0 || report.StatePurged > 0 {
		j.logger.Debug("expired records removed",
			zap.Int("comms_log", report.CommsPurged),
			zap.Int("state", report.StatePurged))
	}
	return report
}
