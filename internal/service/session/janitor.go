package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor sweeps a Store on a fixed schedule.
type Janitor struct {
	store  *Store
	cron   *cron.Cron
	logger *zap.Logger
}

// NewJanitor schedules Sweep every interval. Intervals below one second are rounded up.
func NewJanitor(store *Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{
		store:  store,
		logger: logger,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	j.cron.Schedule(cron.Every(interval), cron.FuncJob(j.RunOnce))
	return j
}

// RunOnce sweeps immediately.
func (j *Janitor) RunOnce() {
	removed := j.store.Sweep(time.Now())
	if removed > 0 {
		j.logger.Info("sessions evicted", zap.Int("removed", removed), zap.Int("remaining", j.store.Len()))
	}
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or until ctx ends.
func (j *Janitor) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
