// Package report computes read-side cache statistics: counts, per-state
// breakdowns and a freshness/staleness view over the metric store.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workstat/internal/store"
)

// staleAfter is the age beyond which cached data is considered stale.
const staleAfter = 24 * time.Hour

// CacheHealth flags the basic liveness of the cache contents.
type CacheHealth struct {
	Districts bool `json:"districts"`
	Metrics   bool `json:"metrics"`
	Recent    bool `json:"recent"`
}

// CacheStatus is the aggregate view served by the cache-status endpoint.
type CacheStatus struct {
	TotalDistricts int64                  `json:"total_districts"`
	TotalMetrics   int64                  `json:"total_metrics"`
	LatestUpdate   *time.Time             `json:"latest_update,omitempty"`
	DataByState    []store.StateAggregate `json:"data_by_state"`
	Health         CacheHealth            `json:"cache_health"`
}

// OverallFreshness summarizes metric recency; age is measured from the newest
// record.
type OverallFreshness struct {
	Oldest     time.Time `json:"oldest"`
	Newest     time.Time `json:"newest"`
	Count      int64     `json:"count"`
	AgeInHours int       `json:"age_in_hours"`
	IsStale    bool      `json:"is_stale"`
}

// Freshness is the full freshness report. Overall is nil when the store holds
// no metrics: freshness of an empty cache is unknown, not zero.
type Freshness struct {
	Overall *OverallFreshness      `json:"overall"`
	ByState []store.StateAggregate `json:"by_state"`
}

// Reporter aggregates cache statistics from the store.
type Reporter struct {
	store store.Store
	now   func() time.Time
}

// New creates a Reporter. A nil clock defaults to time.Now.
func New(st store.Store, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{store: st, now: now}
}

// CacheStatus computes totals, the most recent update and the per-state
// breakdown.
func (r *Reporter) CacheStatus(ctx context.Context) (*CacheStatus, error) {
	districts, err := r.store.CountDistricts(ctx, store.DistrictFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: count districts")
	}
	metrics, err := r.store.CountMetrics(ctx, store.MetricFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: count metrics")
	}
	latest, err := r.store.LatestMetricUpdate(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: latest update")
	}
	byState, err := r.store.AggregateMetricsByState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: aggregate by state")
	}

	status := &CacheStatus{
		TotalDistricts: districts,
		TotalMetrics:   metrics,
		LatestUpdate:   latest,
		DataByState:    byState,
		Health: CacheHealth{
			Districts: districts > 0,
			Metrics:   metrics > 0,
		},
	}
	if latest != nil {
		status.Health.Recent = r.now().Sub(*latest) < staleAfter
	}
	return status, nil
}

// Freshness computes overall and per-state recency. An empty store yields a
// nil Overall.
func (r *Reporter) Freshness(ctx context.Context) (*Freshness, error) {
	bounds, err := r.store.MetricFreshness(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: metric freshness")
	}
	byState, err := r.store.AggregateMetricsByState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: aggregate by state")
	}

	out := &Freshness{ByState: byState}
	if bounds == nil {
		return out, nil
	}

	age := r.now().Sub(bounds.Newest)
	out.Overall = &OverallFreshness{
		Oldest:     bounds.Oldest,
		Newest:     bounds.Newest,
		Count:      bounds.Count,
		AgeInHours: int(age.Hours()),
		IsStale:    age > staleAfter,
	}
	return out, nil
}
