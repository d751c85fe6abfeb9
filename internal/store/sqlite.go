package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/workstat/internal/model"
)

// sqliteTimeLayout is a fixed-width UTC layout so lexicographic MIN/MAX on
// stored timestamps matches chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS districts (
	district_id   TEXT PRIMARY KEY,
	district_name TEXT NOT NULL,
	state_name    TEXT NOT NULL,
	state_code    TEXT NOT NULL DEFAULT '',
	latitude      REAL,
	longitude     REAL,
	population    INTEGER,
	area          REAL,
	is_active     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS metrics (
	district_id              TEXT NOT NULL,
	year                     INTEGER NOT NULL,
	month                    INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	district_name            TEXT NOT NULL DEFAULT '',
	state_name               TEXT NOT NULL DEFAULT '',
	financial_year           TEXT NOT NULL DEFAULT '',
	total_households         INTEGER NOT NULL DEFAULT 0,
	households_demanded_work INTEGER NOT NULL DEFAULT 0,
	households_provided_work INTEGER NOT NULL DEFAULT 0,
	total_persons            INTEGER NOT NULL DEFAULT 0,
	persons_demanded_work    INTEGER NOT NULL DEFAULT 0,
	persons_provided_work    INTEGER NOT NULL DEFAULT 0,
	total_workdays           INTEGER NOT NULL DEFAULT 0,
	workdays_generated       INTEGER NOT NULL DEFAULT 0,
	total_wages              REAL NOT NULL DEFAULT 0,
	wages_paid               REAL NOT NULL DEFAULT 0,
	material_cost            REAL NOT NULL DEFAULT 0,
	administrative_cost      REAL NOT NULL DEFAULT 0,
	employment_rate          REAL NOT NULL DEFAULT 0,
	work_completion_rate     REAL NOT NULL DEFAULT 0,
	wage_payment_rate        REAL NOT NULL DEFAULT 0,
	data_source              TEXT NOT NULL DEFAULT '',
	last_updated             DATETIME NOT NULL,
	PRIMARY KEY (district_id, year, month)
);

CREATE INDEX IF NOT EXISTS idx_districts_state ON districts(state_name);
CREATE INDEX IF NOT EXISTS idx_metrics_state ON metrics(state_name, year, month);
CREATE INDEX IF NOT EXISTS idx_metrics_fy ON metrics(financial_year, district_id);
CREATE INDEX IF NOT EXISTS idx_metrics_last_updated ON metrics(last_updated);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDistrict(ctx context.Context, d model.District) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO districts (district_id, district_name, state_name, state_code,
			latitude, longitude, population, area, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(district_id) DO UPDATE SET
			district_name = excluded.district_name,
			state_name    = excluded.state_name,
			state_code    = excluded.state_code,
			latitude      = excluded.latitude,
			longitude     = excluded.longitude,
			population    = excluded.population,
			area          = excluded.area,
			is_active     = excluded.is_active`,
		d.DistrictID, d.DistrictName, d.StateName, d.StateCode,
		d.Latitude, d.Longitude, d.Population, d.Area, d.IsActive,
	)
	return eris.Wrapf(err, "sqlite: upsert district %s", d.DistrictID)
}

func (s *SQLiteStore) FindDistrictByID(ctx context.Context, id string) (*model.District, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT district_id, district_name, state_name, state_code,
			latitude, longitude, population, area, is_active
		 FROM districts WHERE district_id = ?`, id)

	d, err := scanDistrict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find district %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDistricts(ctx context.Context, filter DistrictFilter) ([]model.District, error) {
	query := `SELECT district_id, district_name, state_name, state_code,
		latitude, longitude, population, area, is_active FROM districts WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state_name LIKE ?`
		args = append(args, "%"+filter.State+"%")
	}
	if filter.Search != "" {
		query += ` AND (district_name LIKE ? OR state_name LIKE ?)`
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	query += ` ORDER BY state_name, district_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list districts")
	}
	defer rows.Close()

	var out []model.District
	for rows.Next() {
		d, err := scanDistrict(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan district")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list districts iterate")
}

func (s *SQLiteStore) CountDistricts(ctx context.Context, filter DistrictFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM districts WHERE 1=1`
	var args []any
	if filter.State != "" {
		query += ` AND state_name LIKE ?`
		args = append(args, "%"+filter.State+"%")
	}
	if filter.Search != "" {
		query += ` AND (district_name LIKE ? OR state_name LIKE ?)`
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count districts")
	}
	return n, nil
}

func (s *SQLiteStore) UpsertMetric(ctx context.Context, m model.Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (district_id, year, month, district_name, state_name,
			financial_year, total_households, households_demanded_work,
			households_provided_work, total_persons, persons_demanded_work,
			persons_provided_work, total_workdays, workdays_generated,
			total_wages, wages_paid, material_cost, administrative_cost,
			employment_rate, work_completion_rate, wage_payment_rate,
			data_source, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(district_id, year, month) DO UPDATE SET
			district_name            = excluded.district_name,
			state_name               = excluded.state_name,
			financial_year           = excluded.financial_year,
			total_households         = excluded.total_households,
			households_demanded_work = excluded.households_demanded_work,
			households_provided_work = excluded.households_provided_work,
			total_persons            = excluded.total_persons,
			persons_demanded_work    = excluded.persons_demanded_work,
			persons_provided_work    = excluded.persons_provided_work,
			total_workdays           = excluded.total_workdays,
			workdays_generated       = excluded.workdays_generated,
			total_wages              = excluded.total_wages,
			wages_paid               = excluded.wages_paid,
			material_cost            = excluded.material_cost,
			administrative_cost      = excluded.administrative_cost,
			employment_rate          = excluded.employment_rate,
			work_completion_rate     = excluded.work_completion_rate,
			wage_payment_rate        = excluded.wage_payment_rate,
			data_source              = excluded.data_source,
			last_updated             = excluded.last_updated`,
		m.DistrictID, m.Year, m.Month, m.DistrictName, m.StateName,
		m.FinancialYear, m.TotalHouseholds, m.HouseholdsDemandedWork,
		m.HouseholdsProvidedWork, m.TotalPersons, m.PersonsDemandedWork,
		m.PersonsProvidedWork, m.TotalWorkdays, m.WorkdaysGenerated,
		m.TotalWages, m.WagesPaid, m.MaterialCost, m.AdministrativeCost,
		m.EmploymentRate, m.WorkCompletionRate, m.WagePaymentRate,
		m.DataSource, m.LastUpdated.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s/%d/%d", m.DistrictID, m.Year, m.Month)
}

func metricWhere(filter MetricFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	if filter.DistrictID != "" {
		where += ` AND district_id = ?`
		args = append(args, filter.DistrictID)
	}
	if len(filter.DistrictIDs) > 0 {
		where += ` AND district_id IN (?` + strings.Repeat(`, ?`, len(filter.DistrictIDs)-1) + `)`
		for _, id := range filter.DistrictIDs {
			args = append(args, id)
		}
	}
	if filter.State != "" {
		where += ` AND state_name LIKE ?`
		args = append(args, "%"+filter.State+"%")
	}
	if filter.Year > 0 {
		where += ` AND year = ?`
		args = append(args, filter.Year)
	}
	if filter.Month > 0 {
		where += ` AND month = ?`
		args = append(args, filter.Month)
	}
	if filter.FinancialYear != "" {
		where += ` AND financial_year = ?`
		args = append(args, filter.FinancialYear)
	}
	return where, args
}

const metricColumns = `district_id, year, month, district_name, state_name,
	financial_year, total_households, households_demanded_work,
	households_provided_work, total_persons, persons_demanded_work,
	persons_provided_work, total_workdays, workdays_generated,
	total_wages, wages_paid, material_cost, administrative_cost,
	employment_rate, work_completion_rate, wage_payment_rate,
	data_source, last_updated`

func (s *SQLiteStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.Metric, error) {
	where, args := metricWhere(filter)
	query := `SELECT ` + metricColumns + ` FROM metrics` + where + ` ORDER BY year DESC, month DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var out []model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

func (s *SQLiteStore) CountMetrics(ctx context.Context, filter MetricFilter) (int64, error) {
	where, args := metricWhere(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count metrics")
	}
	return n, nil
}

func (s *SQLiteStore) LatestMetricUpdate(ctx context.Context) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_updated FROM metrics ORDER BY last_updated DESC LIMIT 1`,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest metric update")
	}
	t, err := parseSQLiteTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) MetricFreshness(ctx context.Context) (*FreshnessBounds, error) {
	var count int64
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(last_updated), MAX(last_updated) FROM metrics`,
	).Scan(&count, &oldest, &newest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: metric freshness")
	}
	if count == 0 {
		return nil, nil
	}

	bounds := &FreshnessBounds{Count: count}
	if bounds.Oldest, err = parseSQLiteTime(oldest.String); err != nil {
		return nil, err
	}
	if bounds.Newest, err = parseSQLiteTime(newest.String); err != nil {
		return nil, err
	}
	return bounds, nil
}

func (s *SQLiteStore) AggregateMetricsByState(ctx context.Context) ([]StateAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_name, COUNT(*), MIN(last_updated), MAX(last_updated)
		 FROM metrics GROUP BY state_name ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: aggregate by state")
	}
	defer rows.Close()

	var out []StateAggregate
	for rows.Next() {
		var agg StateAggregate
		var oldest, newest string
		if err := rows.Scan(&agg.StateName, &agg.Count, &oldest, &newest); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state aggregate")
		}
		if agg.Oldest, err = parseSQLiteTime(oldest); err != nil {
			return nil, err
		}
		if agg.Newest, err = parseSQLiteTime(newest); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: aggregate iterate")
}

func (s *SQLiteStore) CompareStates(ctx context.Context, filter MetricFilter) ([]StateComparison, error) {
	where, args := metricWhere(filter)
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_name, COUNT(*), AVG(employment_rate), AVG(work_completion_rate),
			AVG(wage_payment_rate), SUM(total_households), SUM(total_persons),
			SUM(total_workdays), SUM(total_wages), MAX(last_updated)
		 FROM metrics`+where+` GROUP BY state_name`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: compare states")
	}
	defer rows.Close()

	var out []StateComparison
	for rows.Next() {
		var sc StateComparison
		var newest string
		if err := rows.Scan(&sc.StateName, &sc.Rows, &sc.AvgEmploymentRate,
			&sc.AvgWorkCompletionRate, &sc.AvgWagePaymentRate,
			&sc.TotalHouseholds, &sc.TotalPersons, &sc.TotalWorkdays,
			&sc.TotalWages, &newest); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state comparison")
		}
		if sc.LastUpdated, err = parseSQLiteTime(newest); err != nil {
			return nil, err
		}
		sc.PerformanceScore = roundRate(model.CompositeScore(
			sc.AvgEmploymentRate, sc.AvgWorkCompletionRate, sc.AvgWagePaymentRate))
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: compare states iterate")
	}
	sortStateComparisons(out)
	return out, nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, kind EntityKind) (int64, error) {
	var table string
	switch kind {
	case EntityDistricts:
		table = "districts"
	case EntityMetrics:
		table = "metrics"
	default:
		return 0, eris.Errorf("sqlite: unknown entity kind %q", kind)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete all %s", table)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanDistrict(row scannable) (*model.District, error) {
	var d model.District
	var lat, lng, area sql.NullFloat64
	var pop sql.NullInt64

	err := row.Scan(&d.DistrictID, &d.DistrictName, &d.StateName, &d.StateCode,
		&lat, &lng, &pop, &area, &d.IsActive)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		d.Latitude = &lat.Float64
	}
	if lng.Valid {
		d.Longitude = &lng.Float64
	}
	if pop.Valid {
		d.Population = &pop.Int64
	}
	if area.Valid {
		d.Area = &area.Float64
	}
	return &d, nil
}

func scanMetric(row scannable) (*model.Metric, error) {
	var m model.Metric
	var lastUpdated string

	err := row.Scan(&m.DistrictID, &m.Year, &m.Month, &m.DistrictName, &m.StateName,
		&m.FinancialYear, &m.TotalHouseholds, &m.HouseholdsDemandedWork,
		&m.HouseholdsProvidedWork, &m.TotalPersons, &m.PersonsDemandedWork,
		&m.PersonsProvidedWork, &m.TotalWorkdays, &m.WorkdaysGenerated,
		&m.TotalWages, &m.WagesPaid, &m.MaterialCost, &m.AdministrativeCost,
		&m.EmploymentRate, &m.WorkCompletionRate, &m.WagePaymentRate,
		&m.DataSource, &lastUpdated)
	if err != nil {
		return nil, err
	}

	m.LastUpdated, err = parseSQLiteTime(lastUpdated)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}
