package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgres_FindDistrictByID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM districts WHERE district_id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	d, err := s.FindDistrictByID(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindDistrictByID_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"district_id", "district_name", "state_name", "state_code",
		"latitude", "longitude", "population", "area", "is_active",
	}).AddRow("D1", "Pune", "Maharashtra", "MH", nil, nil, nil, nil, true)

	mock.ExpectQuery(`FROM districts WHERE district_id = \$1`).
		WithArgs("D1").
		WillReturnRows(rows)

	d, err := s.FindDistrictByID(context.Background(), "D1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "Pune", d.DistrictName)
	assert.Nil(t, d.Population)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertDistrict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO districts`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	d := testDistrict("D1", "Pune", "Maharashtra")
	require.NoError(t, s.UpsertDistrict(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertMetric(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO metrics`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	m := testMetric("D1", 2024, 3, time.Now())
	require.NoError(t, s.UpsertMetric(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LatestMetricUpdate_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT last_updated FROM metrics ORDER BY last_updated DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestMetricUpdate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MetricFreshness_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"count", "min", "max"}).
		AddRow(int64(0), (*time.Time)(nil), (*time.Time)(nil))
	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(last_updated\), MAX\(last_updated\) FROM metrics`).
		WillReturnRows(rows)

	bounds, err := s.MetricFreshness(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bounds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MetricFreshness_Bounds(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	oldest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"count", "min", "max"}).
		AddRow(int64(5), &oldest, &newest)
	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(last_updated\), MAX\(last_updated\) FROM metrics`).
		WillReturnRows(rows)

	bounds, err := s.MetricFreshness(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bounds)
	assert.Equal(t, int64(5), bounds.Count)
	assert.True(t, bounds.Oldest.Equal(oldest))
	assert.True(t, bounds.Newest.Equal(newest))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListMetrics_FilterPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"district_id", "year", "month", "district_name", "state_name",
		"financial_year", "total_households", "households_demanded_work",
		"households_provided_work", "total_persons", "persons_demanded_work",
		"persons_provided_work", "total_workdays", "workdays_generated",
		"total_wages", "wages_paid", "material_cost", "administrative_cost",
		"employment_rate", "work_completion_rate", "wage_payment_rate",
		"data_source", "last_updated",
	}).AddRow("D1", 2024, 3, "Pune", "Maharashtra",
		"2024-25", int64(1000), int64(0),
		int64(800), int64(0), int64(0),
		int64(0), int64(0), int64(0),
		50000.0, 45000.0, 0.0, 0.0,
		80.0, 0.0, 90.0,
		"data.gov.in", time.Now())

	mock.ExpectQuery(`FROM metrics WHERE TRUE AND district_id = \$1 AND year = \$2 AND month = \$3 ORDER BY year DESC, month DESC LIMIT \$4`).
		WithArgs("D1", 2024, 3, 1000).
		WillReturnRows(rows)

	got, err := s.ListMetrics(context.Background(), MetricFilter{DistrictID: "D1", Year: 2024, Month: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1000), got[0].TotalHouseholds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListMetrics_DistrictIDsUseAny(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"district_id", "year", "month", "district_name", "state_name",
		"financial_year", "total_households", "households_demanded_work",
		"households_provided_work", "total_persons", "persons_demanded_work",
		"persons_provided_work", "total_workdays", "workdays_generated",
		"total_wages", "wages_paid", "material_cost", "administrative_cost",
		"employment_rate", "work_completion_rate", "wage_payment_rate",
		"data_source", "last_updated",
	})

	mock.ExpectQuery(`FROM metrics WHERE TRUE AND district_id = ANY\(\$1\) ORDER BY year DESC, month DESC LIMIT \$2`).
		WithArgs([]string{"D1", "D2"}, 1000).
		WillReturnRows(rows)

	got, err := s.ListMetrics(context.Background(), MetricFilter{DistrictIDs: []string{"D1", "D2"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompareStates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	newest := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"state_name", "count", "avg_emp", "avg_work", "avg_wage",
		"sum_households", "sum_persons", "sum_workdays", "sum_wages", "max_updated",
	}).
		AddRow("Maharashtra", int64(2), 70.0, 50.0, 80.0,
			int64(2000), int64(0), int64(0), 100000.0, newest).
		AddRow("Rajasthan", int64(1), 90.0, 90.0, 90.0,
			int64(1000), int64(0), int64(0), 50000.0, newest)

	mock.ExpectQuery(`FROM metrics WHERE TRUE AND year = \$1 GROUP BY state_name`).
		WithArgs(2024).
		WillReturnRows(rows)

	states, err := s.CompareStates(context.Background(), MetricFilter{Year: 2024})
	require.NoError(t, err)
	require.Len(t, states, 2)

	// Re-ranked by composite score, not row order.
	assert.Equal(t, "Rajasthan", states[0].StateName)
	assert.InDelta(t, 90.0, states[0].PerformanceScore, 1e-9)
	assert.Equal(t, "Maharashtra", states[1].StateName)
	assert.InDelta(t, 67.0, states[1].PerformanceScore, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM metrics`).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	n, err := s.DeleteAll(context.Background(), EntityMetrics)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteAll_UnknownKind(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.DeleteAll(context.Background(), EntityKind("all"))
	require.Error(t, err)
}
