package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/workstat/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS districts (
	district_id   TEXT PRIMARY KEY,
	district_name TEXT NOT NULL,
	state_name    TEXT NOT NULL,
	state_code    TEXT NOT NULL DEFAULT '',
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	population    BIGINT,
	area          DOUBLE PRECISION,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS metrics (
	district_id              TEXT NOT NULL,
	year                     INT NOT NULL,
	month                    INT NOT NULL CHECK (month BETWEEN 1 AND 12),
	district_name            TEXT NOT NULL DEFAULT '',
	state_name               TEXT NOT NULL DEFAULT '',
	financial_year           TEXT NOT NULL DEFAULT '',
	total_households         BIGINT NOT NULL DEFAULT 0,
	households_demanded_work BIGINT NOT NULL DEFAULT 0,
	households_provided_work BIGINT NOT NULL DEFAULT 0,
	total_persons            BIGINT NOT NULL DEFAULT 0,
	persons_demanded_work    BIGINT NOT NULL DEFAULT 0,
	persons_provided_work    BIGINT NOT NULL DEFAULT 0,
	total_workdays           BIGINT NOT NULL DEFAULT 0,
	workdays_generated       BIGINT NOT NULL DEFAULT 0,
	total_wages              DOUBLE PRECISION NOT NULL DEFAULT 0,
	wages_paid               DOUBLE PRECISION NOT NULL DEFAULT 0,
	material_cost            DOUBLE PRECISION NOT NULL DEFAULT 0,
	administrative_cost      DOUBLE PRECISION NOT NULL DEFAULT 0,
	employment_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
	work_completion_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_payment_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_source              TEXT NOT NULL DEFAULT '',
	last_updated             TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (district_id, year, month)
);

CREATE INDEX IF NOT EXISTS idx_districts_state ON districts(state_name);
CREATE INDEX IF NOT EXISTS idx_metrics_state ON metrics(state_name, year, month);
CREATE INDEX IF NOT EXISTS idx_metrics_fy ON metrics(financial_year, district_id);
CREATE INDEX IF NOT EXISTS idx_metrics_last_updated ON metrics(last_updated);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertDistrict(ctx context.Context, d model.District) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO districts (district_id, district_name, state_name, state_code,
			latitude, longitude, population, area, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (district_id) DO UPDATE SET
			district_name = EXCLUDED.district_name,
			state_name    = EXCLUDED.state_name,
			state_code    = EXCLUDED.state_code,
			latitude      = EXCLUDED.latitude,
			longitude     = EXCLUDED.longitude,
			population    = EXCLUDED.population,
			area          = EXCLUDED.area,
			is_active     = EXCLUDED.is_active`,
		d.DistrictID, d.DistrictName, d.StateName, d.StateCode,
		d.Latitude, d.Longitude, d.Population, d.Area, d.IsActive,
	)
	return eris.Wrapf(err, "postgres: upsert district %s", d.DistrictID)
}

func (s *PostgresStore) FindDistrictByID(ctx context.Context, id string) (*model.District, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT district_id, district_name, state_name, state_code,
			latitude, longitude, population, area, is_active
		 FROM districts WHERE district_id = $1`, id)

	var d model.District
	err := row.Scan(&d.DistrictID, &d.DistrictName, &d.StateName, &d.StateCode,
		&d.Latitude, &d.Longitude, &d.Population, &d.Area, &d.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find district %s", id)
	}
	return &d, nil
}

func (s *PostgresStore) ListDistricts(ctx context.Context, filter DistrictFilter) ([]model.District, error) {
	query := `SELECT district_id, district_name, state_name, state_code,
		latitude, longitude, population, area, is_active FROM districts WHERE TRUE`
	var args []any

	if filter.State != "" {
		args = append(args, "%"+filter.State+"%")
		query += ` AND state_name ILIKE $` + itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := itoa(len(args))
		query += ` AND (district_name ILIKE $` + n + ` OR state_name ILIKE $` + n + `)`
	}
	query += ` ORDER BY state_name, district_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list districts")
	}
	defer rows.Close()

	var out []model.District
	for rows.Next() {
		var d model.District
		if err := rows.Scan(&d.DistrictID, &d.DistrictName, &d.StateName, &d.StateCode,
			&d.Latitude, &d.Longitude, &d.Population, &d.Area, &d.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list districts iterate")
}

func (s *PostgresStore) CountDistricts(ctx context.Context, filter DistrictFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM districts WHERE TRUE`
	var args []any
	if filter.State != "" {
		args = append(args, "%"+filter.State+"%")
		query += ` AND state_name ILIKE $` + itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := itoa(len(args))
		query += ` AND (district_name ILIKE $` + n + ` OR state_name ILIKE $` + n + `)`
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count districts")
	}
	return n, nil
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, m model.Metric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metrics (district_id, year, month, district_name, state_name,
			financial_year, total_households, households_demanded_work,
			households_provided_work, total_persons, persons_demanded_work,
			persons_provided_work, total_workdays, workdays_generated,
			total_wages, wages_paid, material_cost, administrative_cost,
			employment_rate, work_completion_rate, wage_payment_rate,
			data_source, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
		 ON CONFLICT (district_id, year, month) DO UPDATE SET
			district_name            = EXCLUDED.district_name,
			state_name               = EXCLUDED.state_name,
			financial_year           = EXCLUDED.financial_year,
			total_households         = EXCLUDED.total_households,
			households_demanded_work = EXCLUDED.households_demanded_work,
			households_provided_work = EXCLUDED.households_provided_work,
			total_persons            = EXCLUDED.total_persons,
			persons_demanded_work    = EXCLUDED.persons_demanded_work,
			persons_provided_work    = EXCLUDED.persons_provided_work,
			total_workdays           = EXCLUDED.total_workdays,
			workdays_generated       = EXCLUDED.workdays_generated,
			total_wages              = EXCLUDED.total_wages,
			wages_paid               = EXCLUDED.wages_paid,
			material_cost            = EXCLUDED.material_cost,
			administrative_cost      = EXCLUDED.administrative_cost,
			employment_rate          = EXCLUDED.employment_rate,
			work_completion_rate     = EXCLUDED.work_completion_rate,
			wage_payment_rate        = EXCLUDED.wage_payment_rate,
			data_source              = EXCLUDED.data_source,
			last_updated             = EXCLUDED.last_updated`,
		m.DistrictID, m.Year, m.Month, m.DistrictName, m.StateName,
		m.FinancialYear, m.TotalHouseholds, m.HouseholdsDemandedWork,
		m.HouseholdsProvidedWork, m.TotalPersons, m.PersonsDemandedWork,
		m.PersonsProvidedWork, m.TotalWorkdays, m.WorkdaysGenerated,
		m.TotalWages, m.WagesPaid, m.MaterialCost, m.AdministrativeCost,
		m.EmploymentRate, m.WorkCompletionRate, m.WagePaymentRate,
		m.DataSource, m.LastUpdated.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert metric %s/%d/%d", m.DistrictID, m.Year, m.Month)
}

func pgMetricWhere(filter MetricFilter) (string, []any) {
	where := ` WHERE TRUE`
	var args []any
	if filter.DistrictID != "" {
		args = append(args, filter.DistrictID)
		where += ` AND district_id = $` + itoa(len(args))
	}
	if len(filter.DistrictIDs) > 0 {
		args = append(args, filter.DistrictIDs)
		where += ` AND district_id = ANY($` + itoa(len(args)) + `)`
	}
	if filter.State != "" {
		args = append(args, "%"+filter.State+"%")
		where += ` AND state_name ILIKE $` + itoa(len(args))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		where += ` AND year = $` + itoa(len(args))
	}
	if filter.Month > 0 {
		args = append(args, filter.Month)
		where += ` AND month = $` + itoa(len(args))
	}
	if filter.FinancialYear != "" {
		args = append(args, filter.FinancialYear)
		where += ` AND financial_year = $` + itoa(len(args))
	}
	return where, args
}

func (s *PostgresStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error) {
	where, args := pgMetricWhere(filter)
	query := `SELECT ` + metricColumns + ` FROM metrics` + where + ` ORDER BY year DESC, month DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var out []model.Metric
	for rows.Next() {
		var m model.Metric
		if err := rows.Scan(&m.DistrictID, &m.Year, &m.Month, &m.DistrictName, &m.StateName,
			&m.FinancialYear, &m.TotalHouseholds, &m.HouseholdsDemandedWork,
			&m.HouseholdsProvidedWork, &m.TotalPersons, &m.PersonsDemandedWork,
			&m.PersonsProvidedWork, &m.TotalWorkdays, &m.WorkdaysGenerated,
			&m.TotalWages, &m.WagesPaid, &m.MaterialCost, &m.AdministrativeCost,
			&m.EmploymentRate, &m.WorkCompletionRate, &m.WagePaymentRate,
			&m.DataSource, &m.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

func (s *PostgresStore) CountMetrics(ctx context.Context, filter MetricFilter) (int64, error) {
	where, args := pgMetricWhere(filter)
	query := `SELECT COUNT(*) FROM metrics` + where

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count metrics")
	}
	return n, nil
}

func (s *PostgresStore) LatestMetricUpdate(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_updated FROM metrics ORDER BY last_updated DESC LIMIT 1`,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest metric update")
	}
	return &t, nil
}

func (s *PostgresStore) MetricFreshness(ctx context.Context) (*FreshnessBounds, error) {
	var count int64
	var oldest, newest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(last_updated), MAX(last_updated) FROM metrics`,
	).Scan(&count, &oldest, &newest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: metric freshness")
	}
	if count == 0 || oldest == nil || newest == nil {
		return nil, nil
	}
	return &FreshnessBounds{Oldest: *oldest, Newest: *newest, Count: count}, nil
}

func (s *PostgresStore) AggregateMetricsByState(ctx context.Context) ([]StateAggregate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state_name, COUNT(*), MIN(last_updated), MAX(last_updated)
		 FROM metrics GROUP BY state_name ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: aggregate by state")
	}
	defer rows.Close()

	var out []StateAggregate
	for rows.Next() {
		var agg StateAggregate
		if err := rows.Scan(&agg.StateName, &agg.Count, &agg.Oldest, &agg.Newest); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state aggregate")
		}
		out = append(out, agg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: aggregate iterate")
}

func (s *PostgresStore) CompareStates(ctx context.Context, filter MetricFilter) ([]StateComparison, error) {
	where, args := pgMetricWhere(filter)
	rows, err := s.pool.Query(ctx,
		`SELECT state_name, COUNT(*), AVG(employment_rate), AVG(work_completion_rate),
			AVG(wage_payment_rate), SUM(total_households)::BIGINT, SUM(total_persons)::BIGINT,
			SUM(total_workdays)::BIGINT, SUM(total_wages), MAX(last_updated)
		 FROM metrics`+where+` GROUP BY state_name`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: compare states")
	}
	defer rows.Close()

	var out []StateComparison
	for rows.Next() {
		var sc StateComparison
		if err := rows.Scan(&sc.StateName, &sc.Rows, &sc.AvgEmploymentRate,
			&sc.AvgWorkCompletionRate, &sc.AvgWagePaymentRate,
			&sc.TotalHouseholds, &sc.TotalPersons, &sc.TotalWorkdays,
			&sc.TotalWages, &sc.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state comparison")
		}
		sc.PerformanceScore = roundRate(model.CompositeScore(
			sc.AvgEmploymentRate, sc.AvgWorkCompletionRate, sc.AvgWagePaymentRate))
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: compare states iterate")
	}
	sortStateComparisons(out)
	return out, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, kind EntityKind) (int64, error) {
	var table string
	switch kind {
	case EntityDistricts:
		table = "districts"
	case EntityMetrics:
		table = "metrics"
	default:
		return 0, eris.Errorf("postgres: unknown entity kind %q", kind)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete all %s", table)
	}
	return tag.RowsAffected(), nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
