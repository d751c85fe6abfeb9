// Package store persists canonical districts and metrics behind a generic
// repository contract with SQLite and Postgres drivers.
package store

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workstat/internal/model"
)

// EntityKind names a stored collection for administrative operations.
type EntityKind string

const (
	EntityDistricts EntityKind = "districts"
	EntityMetrics   EntityKind = "metrics"
)

// ParseEntityKind validates an entity name from an external caller.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case EntityDistricts, EntityMetrics:
		return EntityKind(s), nil
	default:
		return "", eris.Errorf("store: unknown entity kind %q", s)
	}
}

// DistrictFilter narrows district queries.
type DistrictFilter struct {
	State  string `json:"state,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// MetricFilter narrows metric queries. DistrictID and DistrictIDs are
// combined with AND when both are set; callers use one or the other.
type MetricFilter struct {
	DistrictID    string   `json:"district_id,omitempty"`
	DistrictIDs   []string `json:"district_ids,omitempty"`
	State         string   `json:"state,omitempty"`
	Year          int      `json:"year,omitempty"`
	Month         int      `json:"month,omitempty"`
	FinancialYear string   `json:"financial_year,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// StateAggregate is the per-state freshness breakdown row.
type StateAggregate struct {
	StateName string    `json:"state_name"`
	Count     int64     `json:"count"`
	Oldest    time.Time `json:"oldest"`
	Newest    time.Time `json:"newest"`
}

// StateComparison is one state's averaged rates and summed volumes over the
// metric rows matching a filter. Rows counts matched metric rows, not
// distinct districts.
type StateComparison struct {
	StateName             string    `json:"state_name"`
	Rows                  int64     `json:"rows"`
	AvgEmploymentRate     float64   `json:"avg_employment_rate"`
	AvgWorkCompletionRate float64   `json:"avg_work_completion_rate"`
	AvgWagePaymentRate    float64   `json:"avg_wage_payment_rate"`
	TotalHouseholds       int64     `json:"total_households"`
	TotalPersons          int64     `json:"total_persons"`
	TotalWorkdays         int64     `json:"total_workdays"`
	TotalWages            float64   `json:"total_wages"`
	LastUpdated           time.Time `json:"last_updated"`
	PerformanceScore      float64   `json:"performance_score"`
}

// FreshnessBounds summarizes metric recency across the whole store.
type FreshnessBounds struct {
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
	Count  int64     `json:"count"`
}

func roundRate(f float64) float64 {
	return math.Round(f*100) / 100
}

// sortStateComparisons orders best-performing states first.
func sortStateComparisons(out []StateComparison) {
	sort.Slice(out, func(i, j int) bool {
		return out[i].PerformanceScore > out[j].PerformanceScore
	})
}

// Store defines the persistence interface consumed by the reconciler and the
// freshness reporter. Upserts are atomic per key; the store guarantees exactly
// one row per natural identity.
type Store interface {
	// Districts
	FindDistrictByID(ctx context.Context, id string) (*model.District, error)
	ListDistricts(ctx context.Context, filter DistrictFilter) ([]model.District, error)
	UpsertDistrict(ctx context.Context, d model.District) error
	CountDistricts(ctx context.Context, filter DistrictFilter) (int64, error)

	// Metrics
	UpsertMetric(ctx context.Context, m model.Metric) error
	ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error)
	CountMetrics(ctx context.Context, filter MetricFilter) (int64, error)
	LatestMetricUpdate(ctx context.Context) (*time.Time, error)
	MetricFreshness(ctx context.Context) (*FreshnessBounds, error)
	AggregateMetricsByState(ctx context.Context) ([]StateAggregate, error)
	CompareStates(ctx context.Context, filter MetricFilter) ([]StateComparison, error)

	// Administration
	DeleteAll(ctx context.Context, kind EntityKind) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
