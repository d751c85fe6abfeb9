// Package scheduler drives periodic synchronization runs from a cron
// expression in a fixed timezone. Overlap is impossible: the syncer's
// single-run guard drops a trigger that fires while a run is in flight.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/config"
	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/syncer"
)

// Status describes the scheduler for monitoring endpoints.
type Status struct {
	Running  bool      `json:"is_running"`
	Schedule string    `json:"schedule"`
	Timezone string    `json:"timezone"`
	NextRun  time.Time `json:"next_run"`
}

// Scheduler owns the cron trigger for the sync pipeline.
type Scheduler struct {
	cron     *cron.Cron
	syncer   *syncer.Syncer
	schedule string
	timezone string
	entry    cron.EntryID
}

// New builds a Scheduler from configuration. It fails fast on an invalid
// timezone or cron expression.
func New(s *syncer.Syncer, cfg config.SyncConfig) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: load timezone %q", cfg.Timezone)
	}

	sched := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		syncer:   s,
		schedule: cfg.Schedule,
		timezone: cfg.Timezone,
	}

	id, err := sched.cron.AddFunc(cfg.Schedule, sched.runScheduled)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: invalid cron schedule %q", cfg.Schedule)
	}
	sched.entry = id

	return sched, nil
}

// Start begins firing the cron trigger. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("sync scheduler started",
		zap.String("schedule", s.schedule),
		zap.String("timezone", s.timezone),
		zap.Time("next_run", s.cron.Entry(s.entry).Next),
	)
}

// Stop halts the trigger and waits for an in-flight run to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.L().Info("sync scheduler stopped")
}

// Status reports the scheduler state for the monitoring surface.
func (s *Scheduler) Status() Status {
	return Status{
		Running:  s.syncer.Running(),
		Schedule: s.schedule,
		Timezone: s.timezone,
		NextRun:  s.cron.Entry(s.entry).Next,
	}
}

func (s *Scheduler) runScheduled() {
	zap.L().Info("scheduled data synchronization triggered")

	run, err := s.syncer.TriggerSync(context.Background(), false)
	if err != nil {
		zap.L().Error("scheduled sync failed", zap.Error(err))
		return
	}

	switch run.Status {
	case model.RunStatusAlreadyCurrent:
		zap.L().Info("scheduled sync skipped, data already current")
	case model.RunStatusAlreadyRunning:
		zap.L().Info("scheduled sync skipped, run already in progress")
	default:
		zap.L().Info("scheduled sync completed",
			zap.Int("districts_synced", run.Districts.Synced),
			zap.Int("metrics_synced", run.Metrics.Synced),
			zap.Duration("duration", run.Duration),
		)
	}
}
