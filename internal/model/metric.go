package model

import (
	"math"
	"time"
)

// DefaultDataSource tags records synced from the public open-data API.
const DefaultDataSource = "data.gov.in"

// Performance score weights (employment / work completion / wage payment).
const (
	employmentWeight = 0.4
	workWeight       = 0.3
	wageWeight       = 0.3
)

// Metric holds one district-month of employment statistics. The composite key
// is (DistrictID, Year, Month); upserts on that key replace prior values.
type Metric struct {
	DistrictID   string `json:"district_id"`
	DistrictName string `json:"district_name"`
	StateName    string `json:"state_name"`

	Year          int    `json:"year"`
	Month         int    `json:"month"`
	FinancialYear string `json:"financial_year"`

	TotalHouseholds        int64 `json:"total_households"`
	HouseholdsDemandedWork int64 `json:"households_demanded_work"`
	HouseholdsProvidedWork int64 `json:"households_provided_work"`
	TotalPersons           int64 `json:"total_persons"`
	PersonsDemandedWork    int64 `json:"persons_demanded_work"`
	PersonsProvidedWork    int64 `json:"persons_provided_work"`
	TotalWorkdays          int64 `json:"total_workdays"`
	WorkdaysGenerated      int64 `json:"workdays_generated"`

	TotalWages         float64 `json:"total_wages"`
	WagesPaid          float64 `json:"wages_paid"`
	MaterialCost       float64 `json:"material_cost"`
	AdministrativeCost float64 `json:"administrative_cost"`

	// Derived percentages, rounded to 2 decimal places, 0 when the
	// denominator is 0.
	EmploymentRate     float64 `json:"employment_rate"`
	WorkCompletionRate float64 `json:"work_completion_rate"`
	WagePaymentRate    float64 `json:"wage_payment_rate"`

	DataSource  string    `json:"data_source"`
	LastUpdated time.Time `json:"last_updated"`
}

// Key identifies a metric row by its composite natural identity.
type Key struct {
	DistrictID string
	Year       int
	Month      int
}

// Key returns the composite identity of the metric.
func (m *Metric) Key() Key {
	return Key{DistrictID: m.DistrictID, Year: m.Year, Month: m.Month}
}

// PerformanceScore is the weighted combination of the three rates, rounded to
// the nearest integer. It is computed on read and never persisted.
func (m *Metric) PerformanceScore() int {
	return int(math.Round(CompositeScore(m.EmploymentRate, m.WorkCompletionRate, m.WagePaymentRate)))
}

// CompositeScore applies the performance weights to a set of rates without
// rounding, so averaged rates can be scored the same way as a single row.
func CompositeScore(employment, work, wage float64) float64 {
	return employment*employmentWeight + work*workWeight + wage*wageWeight
}
