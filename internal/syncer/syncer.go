// Package syncer orchestrates a full synchronization run: fetch all upstream
// endpoints, normalize, then reconcile districts and metrics into the store.
// Per-record and per-endpoint failures are absorbed and counted; only
// run-level conditions (missing credential, zero total data) fail a run.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/config"
	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/normalize"
	"github.com/sells-group/workstat/internal/store"
	"github.com/sells-group/workstat/internal/upstream"
)

// ErrNoData indicates every upstream endpoint returned zero records. It is
// surfaced distinctly from generic failures: it usually means the upstream
// source itself is unreachable or empty.
var ErrNoData = eris.New("syncer: no data received from any upstream endpoint")

// Fetcher fetches all upstream endpoints with settle-all semantics.
// *upstream.Client implements it.
type Fetcher interface {
	FetchAll(ctx context.Context) (*upstream.Bundle, error)
}

// Syncer runs fetch-normalize-reconcile cycles with a single-run-at-a-time
// guard and a staleness short-circuit.
type Syncer struct {
	store     store.Store
	fetcher   Fetcher
	norm      *normalize.Normalizer
	staleness time.Duration
	now       func() time.Time

	running atomic.Bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock injects a time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
		s.norm = normalize.New(now)
	}
}

// New creates a Syncer over the given store and fetcher.
func New(st store.Store, fetcher Fetcher, cfg config.SyncConfig, opts ...Option) *Syncer {
	staleness := time.Duration(cfg.StalenessHours) * time.Hour
	if staleness <= 0 {
		staleness = 24 * time.Hour
	}
	s := &Syncer{
		store:     st,
		fetcher:   fetcher,
		norm:      normalize.New(nil),
		staleness: staleness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a synchronization run is currently in flight.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// TriggerSync executes a full synchronization run. When force is false and the
// newest metric is younger than the staleness window, the run short-circuits
// without contacting upstream. A trigger that arrives while another run holds
// the guard returns immediately with RunStatusAlreadyRunning; it is dropped,
// not queued. The returned SyncRun is always structured; err is non-nil only
// for run-level failures.
func (s *Syncer) TriggerSync(ctx context.Context, force bool) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: s.now(),
	}

	if !s.running.CompareAndSwap(false, true) {
		run.Status = model.RunStatusAlreadyRunning
		run.Duration = s.now().Sub(run.StartedAt)
		zap.L().Info("sync trigger dropped, run already in progress", zap.String("run_id", run.ID))
		return run, nil
	}
	defer s.running.Store(false)

	log := zap.L().With(zap.String("run_id", run.ID))

	if !force {
		latest, err := s.store.LatestMetricUpdate(ctx)
		if err != nil {
			log.Warn("staleness check failed, proceeding with sync", zap.Error(err))
		} else if latest != nil && s.now().Sub(*latest) < s.staleness {
			run.Status = model.RunStatusAlreadyCurrent
			run.LastUpdated = latest
			run.Duration = s.now().Sub(run.StartedAt)
			log.Info("data is already current, skipping sync", zap.Time("last_updated", *latest))
			return run, nil
		}
	}

	log.Info("starting full data synchronization", zap.Bool("force", force))

	bundle, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		run.Duration = s.now().Sub(run.StartedAt)
		return run, eris.Wrap(err, "syncer: fetch")
	}

	if bundle.TotalRecords() == 0 {
		run.Status = model.RunStatusFailed
		run.Error = ErrNoData.Error()
		run.Duration = s.now().Sub(run.StartedAt)
		log.Error("sync failed: all endpoints returned zero records",
			zap.Int("endpoint_errors", len(bundle.Errors)))
		return run, ErrNoData
	}

	districts := s.norm.Districts(bundle.Districts)

	rawMetrics := make([]upstream.Record, 0, len(bundle.Employment)+len(bundle.Works)+len(bundle.Wages))
	rawMetrics = append(rawMetrics, bundle.Employment...)
	rawMetrics = append(rawMetrics, bundle.Works...)
	rawMetrics = append(rawMetrics, bundle.Wages...)
	metrics := s.norm.Metrics(rawMetrics)

	// Districts before metrics: metric rows carry denormalized district and
	// state names that should match district rows.
	run.Districts = s.reconcileDistricts(ctx, districts)
	run.Metrics = s.reconcileMetrics(ctx, metrics)

	run.Status = model.RunStatusCompleted
	run.Duration = s.now().Sub(run.StartedAt)

	log.Info("data synchronization completed",
		zap.Duration("duration", run.Duration),
		zap.Int("districts_synced", run.Districts.Synced),
		zap.Int("districts_failed", run.Districts.Failed),
		zap.Int("metrics_synced", run.Metrics.Synced),
		zap.Int("metrics_failed", run.Metrics.Failed),
	)
	return run, nil
}

// reconcileDistricts upserts each district, isolating per-record failures.
func (s *Syncer) reconcileDistricts(ctx context.Context, districts []model.District) model.ReconcileResult {
	res := model.ReconcileResult{Attempted: len(districts)}
	for _, d := range districts {
		if err := s.store.UpsertDistrict(ctx, d); err != nil {
			res.Failed++
			zap.L().Error("district upsert failed",
				zap.String("district_id", d.DistrictID),
				zap.Error(err),
			)
			continue
		}
		res.Synced++
	}
	return res
}

// reconcileMetrics upserts each metric on its composite key, isolating
// per-record failures.
func (s *Syncer) reconcileMetrics(ctx context.Context, metrics []model.Metric) model.ReconcileResult {
	res := model.ReconcileResult{Attempted: len(metrics)}
	for _, m := range metrics {
		if err := s.store.UpsertMetric(ctx, m); err != nil {
			res.Failed++
			zap.L().Error("metric upsert failed",
				zap.String("district_id", m.DistrictID),
				zap.Int("year", m.Year),
				zap.Int("month", m.Month),
				zap.Error(err),
			)
			continue
		}
		res.Synced++
	}
	return res
}
