package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedMetric(t *testing.T, st store.Store, id, state string, updated time.Time) {
	t.Helper()
	require.NoError(t, st.UpsertMetric(context.Background(), model.Metric{
		DistrictID:  id,
		StateName:   state,
		Year:        2024,
		Month:       3,
		LastUpdated: updated,
	}))
}

var fixedNow = func() time.Time {
	return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestCacheStatus_Empty(t *testing.T) {
	r := New(newTestStore(t), fixedNow)

	cs, err := r.CacheStatus(context.Background())
	require.NoError(t, err)

	assert.Zero(t, cs.TotalDistricts)
	assert.Zero(t, cs.TotalMetrics)
	assert.Nil(t, cs.LatestUpdate)
	assert.False(t, cs.Health.Districts)
	assert.False(t, cs.Health.Metrics)
	assert.False(t, cs.Health.Recent)
}

func TestCacheStatus_Populated(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertDistrict(context.Background(), model.District{
		DistrictID:   "D1",
		DistrictName: "Pune",
		StateName:    "Maharashtra",
		IsActive:     true,
	}))
	seedMetric(t, st, "D1", "Maharashtra", fixedNow().Add(-2*time.Hour))
	seedMetric(t, st, "D2", "Rajasthan", fixedNow().Add(-5*time.Hour))

	r := New(st, fixedNow)
	cs, err := r.CacheStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), cs.TotalDistricts)
	assert.Equal(t, int64(2), cs.TotalMetrics)
	require.NotNil(t, cs.LatestUpdate)
	assert.True(t, cs.LatestUpdate.Equal(fixedNow().Add(-2*time.Hour)))
	assert.Len(t, cs.DataByState, 2)
	assert.True(t, cs.Health.Districts)
	assert.True(t, cs.Health.Metrics)
	assert.True(t, cs.Health.Recent)
}

func TestCacheStatus_OldDataIsNotRecent(t *testing.T) {
	st := newTestStore(t)
	seedMetric(t, st, "D1", "Maharashtra", fixedNow().Add(-30*time.Hour))

	r := New(st, fixedNow)
	cs, err := r.CacheStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, cs.Health.Metrics)
	assert.False(t, cs.Health.Recent)
}

func TestFreshness_EmptyStoreHasNilOverall(t *testing.T) {
	r := New(newTestStore(t), fixedNow)

	fr, err := r.Freshness(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fr.Overall)
	assert.Empty(t, fr.ByState)
}

func TestFreshness_AgeAndStaleness(t *testing.T) {
	st := newTestStore(t)
	seedMetric(t, st, "D1", "Maharashtra", fixedNow().Add(-30*time.Hour))
	seedMetric(t, st, "D2", "Maharashtra", fixedNow().Add(-26*time.Hour))

	r := New(st, fixedNow)
	fr, err := r.Freshness(context.Background())
	require.NoError(t, err)

	require.NotNil(t, fr.Overall)
	assert.Equal(t, int64(2), fr.Overall.Count)
	// Age is measured from the newest record.
	assert.Equal(t, 26, fr.Overall.AgeInHours)
	assert.True(t, fr.Overall.IsStale)
	assert.True(t, fr.Overall.Oldest.Equal(fixedNow().Add(-30*time.Hour)))
	assert.True(t, fr.Overall.Newest.Equal(fixedNow().Add(-26*time.Hour)))
}

func TestFreshness_FreshData(t *testing.T) {
	st := newTestStore(t)
	seedMetric(t, st, "D1", "Maharashtra", fixedNow().Add(-1*time.Hour))

	r := New(st, fixedNow)
	fr, err := r.Freshness(context.Background())
	require.NoError(t, err)

	require.NotNil(t, fr.Overall)
	assert.Equal(t, 1, fr.Overall.AgeInHours)
	assert.False(t, fr.Overall.IsStale)
	require.Len(t, fr.ByState, 1)
	assert.Equal(t, "Maharashtra", fr.ByState[0].StateName)
}
