// Package normalize maps heterogeneous upstream record shapes into the
// canonical District and Metric models. It performs no I/O; the only impurity
// is the injected clock used to stamp LastUpdated and to default missing
// year/month values.
package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/upstream"
)

// Normalizer converts raw upstream records into canonical models.
type Normalizer struct {
	now func() time.Time
}

// New builds a Normalizer. A nil clock defaults to time.Now.
func New(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Districts normalizes raw district records. Records lacking a district id or
// name are dropped; numeric fields fall back to nil on parse failure.
func (n *Normalizer) Districts(raw []upstream.Record) []model.District {
	out := make([]model.District, 0, len(raw))
	for _, r := range raw {
		d := model.District{
			DistrictID:   stringField(r, "district_id"),
			DistrictName: stringField(r, "district_name"),
			StateName:    stringField(r, "state_name"),
			StateCode:    stringField(r, "state_code"),
			Latitude:     floatPtrField(r, "latitude"),
			Longitude:    floatPtrField(r, "longitude"),
			Population:   intPtrField(r, "population"),
			Area:         floatPtrField(r, "area"),
			IsActive:     true,
		}
		if d.DistrictID == "" || d.DistrictName == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Metrics normalizes the concatenated employment, works and wages feeds.
// Records sharing a (district, year, month) key are merged field-wise in
// arrival order: a later record overwrites only the fields it actually
// carries, so a feed that omits wage fields cannot zero out wage data
// contributed by an earlier feed.
func (n *Normalizer) Metrics(raw []upstream.Record) []model.Metric {
	now := n.now()

	merged := make(map[model.Key]upstream.Record)
	var order []model.Key

	for _, r := range raw {
		id := stringField(r, "district_id")
		if id == "" {
			continue
		}
		month := int(intFieldOr(r, "month", int64(now.Month())))
		if month < 1 || month > 12 {
			month = int(now.Month())
		}
		key := model.Key{
			DistrictID: id,
			Year:       int(intFieldOr(r, "year", int64(now.Year()))),
			Month:      month,
		}

		dst, ok := merged[key]
		if !ok {
			dst = make(upstream.Record, len(r))
			merged[key] = dst
			order = append(order, key)
		}
		for k, v := range r {
			if v == nil {
				continue
			}
			if canonical, ok := canonicalKey[k]; ok {
				dst[canonical] = v
			} else {
				dst[k] = v
			}
		}
	}

	out := make([]model.Metric, 0, len(order))
	for _, key := range order {
		out = append(out, n.buildMetric(key, merged[key], now))
	}
	return out
}

func (n *Normalizer) buildMetric(key model.Key, r upstream.Record, now time.Time) model.Metric {
	m := model.Metric{
		DistrictID:   key.DistrictID,
		DistrictName: stringField(r, "district_name"),
		StateName:    stringField(r, "state_name"),
		Year:         key.Year,
		Month:        key.Month,

		TotalHouseholds:        intFieldOr(r, "total_households", 0),
		HouseholdsDemandedWork: intFieldOr(r, "households_demanded_work", 0),
		HouseholdsProvidedWork: intFieldOr(r, "households_provided_work", 0),
		TotalPersons:           intFieldOr(r, "total_persons", 0),
		PersonsDemandedWork:    intFieldOr(r, "persons_demanded_work", 0),
		PersonsProvidedWork:    intFieldOr(r, "persons_provided_work", 0),
		TotalWorkdays:          intFieldOr(r, "total_workdays", 0),
		WorkdaysGenerated:      intFieldOr(r, "workdays_generated", 0),

		TotalWages:         floatFieldOr(r, "total_wages", 0),
		WagesPaid:          floatFieldOr(r, "wages_paid", 0),
		MaterialCost:       floatFieldOr(r, "material_cost", 0),
		AdministrativeCost: floatFieldOr(r, "administrative_cost", 0),

		DataSource:  model.DefaultDataSource,
		LastUpdated: now,
	}

	m.FinancialYear = stringField(r, "financial_year")
	if m.FinancialYear == "" {
		m.FinancialYear = FinancialYear(m.Year)
	}

	m.EmploymentRate = ratePercent(m.HouseholdsProvidedWork, m.TotalHouseholds)
	m.WorkCompletionRate = ratePercent(m.WorkdaysGenerated, m.TotalWorkdays)
	m.WagePaymentRate = rateFloatPercent(m.WagesPaid, m.TotalWages)

	return m
}

// FinancialYear derives the April-March fiscal-year label for a calendar year.
func FinancialYear(year int) string {
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// ratePercent computes provided/total*100 rounded to 2 decimal places,
// defined as 0 when the denominator is 0.
func ratePercent(provided, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(provided) / float64(total) * 100)
}

func rateFloatPercent(provided, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(provided / total * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
