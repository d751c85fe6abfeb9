package main

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/store"
)

type compareRequest struct {
	DistrictIDs   []string `json:"district_ids"`
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	FinancialYear string   `json:"financial_year"`
}

type rateAverages struct {
	EmploymentRate     float64 `json:"employment_rate"`
	WorkCompletionRate float64 `json:"work_completion_rate"`
	WagePaymentRate    float64 `json:"wage_payment_rate"`
}

type volumeTotals struct {
	TotalHouseholds int64   `json:"total_households"`
	TotalPersons    int64   `json:"total_persons"`
	TotalWorkdays   int64   `json:"total_workdays"`
	TotalWages      float64 `json:"total_wages"`
}

// districtComparison summarizes one district's rows matching the comparison
// criteria: its most recent row plus averages and totals over all of them.
type districtComparison struct {
	DistrictID       string       `json:"district_id"`
	DistrictName     string       `json:"district_name"`
	StateName        string       `json:"state_name"`
	Latest           model.Metric `json:"latest"`
	Averages         rateAverages `json:"averages"`
	Totals           volumeTotals `json:"totals"`
	PerformanceScore int          `json:"performance_score"`
}

// compareDistricts ranks two or more districts against each other over the
// rows matching the request criteria, best performance score first.
func (rt *routes) compareDistricts(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.DistrictIDs) < 2 {
		writeError(w, http.StatusBadRequest, "at least 2 district ids are required for comparison")
		return
	}

	metrics, err := rt.env.Store.ListMetrics(r.Context(), store.MetricFilter{
		DistrictIDs:   req.DistrictIDs,
		Year:          req.Year,
		Month:         req.Month,
		FinancialYear: req.FinancialYear,
	})
	if err != nil {
		zap.L().Error("compare districts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compare districts")
		return
	}
	if len(metrics) == 0 {
		writeError(w, http.StatusNotFound, "no data found for the specified districts and criteria")
		return
	}

	comparison := buildComparison(metrics)

	var lastUpdated time.Time
	for _, m := range metrics {
		if m.LastUpdated.After(lastUpdated) {
			lastUpdated = m.LastUpdated
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"comparison": comparison,
		"criteria": map[string]any{
			"year":           req.Year,
			"month":          req.Month,
			"financial_year": req.FinancialYear,
		},
		"last_updated": lastUpdated,
	})
}

// buildComparison groups rows by district and reduces each group. Rows arrive
// newest first, so the first row seen per district is its latest.
func buildComparison(metrics []model.Metric) []districtComparison {
	groups := make(map[string][]model.Metric)
	var order []string
	for _, m := range metrics {
		if _, ok := groups[m.DistrictID]; !ok {
			order = append(order, m.DistrictID)
		}
		groups[m.DistrictID] = append(groups[m.DistrictID], m)
	}

	out := make([]districtComparison, 0, len(order))
	for _, id := range order {
		rows := groups[id]
		latest := rows[0]

		var avg rateAverages
		var totals volumeTotals
		for _, m := range rows {
			avg.EmploymentRate += m.EmploymentRate
			avg.WorkCompletionRate += m.WorkCompletionRate
			avg.WagePaymentRate += m.WagePaymentRate
			totals.TotalHouseholds += m.TotalHouseholds
			totals.TotalPersons += m.TotalPersons
			totals.TotalWorkdays += m.TotalWorkdays
			totals.TotalWages += m.TotalWages
		}
		n := float64(len(rows))
		score := int(math.Round(model.CompositeScore(
			avg.EmploymentRate/n, avg.WorkCompletionRate/n, avg.WagePaymentRate/n)))
		avg.EmploymentRate = round2(avg.EmploymentRate / n)
		avg.WorkCompletionRate = round2(avg.WorkCompletionRate / n)
		avg.WagePaymentRate = round2(avg.WagePaymentRate / n)

		out = append(out, districtComparison{
			DistrictID:       id,
			DistrictName:     latest.DistrictName,
			StateName:        latest.StateName,
			Latest:           latest,
			Averages:         avg,
			Totals:           totals,
			PerformanceScore: score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PerformanceScore > out[j].PerformanceScore
	})
	return out
}

// compareStates ranks states by their averaged performance over the rows
// matching the query criteria.
func (rt *routes) compareStates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MetricFilter{FinancialYear: q.Get("financial_year")}
	filter.Year, _ = strconv.Atoi(q.Get("year"))
	filter.Month, _ = strconv.Atoi(q.Get("month"))

	states, err := rt.env.Store.CompareStates(r.Context(), filter)
	if err != nil {
		zap.L().Error("compare states", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch state comparison data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"states": states,
		"criteria": map[string]any{
			"year":           filter.Year,
			"month":          filter.Month,
			"financial_year": filter.FinancialYear,
		},
	})
}

// trendPoint is one month of a district's trend line, in chart order.
type trendPoint struct {
	Period             string  `json:"period"`
	EmploymentRate     float64 `json:"employment_rate"`
	WorkCompletionRate float64 `json:"work_completion_rate"`
	WagePaymentRate    float64 `json:"wage_payment_rate"`
	TotalHouseholds    int64   `json:"total_households"`
	TotalPersons       int64   `json:"total_persons"`
	TotalWorkdays      int64   `json:"total_workdays"`
	TotalWages         float64 `json:"total_wages"`
}

// districtTrends returns up to N recent months for one district, oldest first
// so the series plots left to right.
func (rt *routes) districtTrends(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	if months <= 0 {
		months = 12
	}

	metrics, err := rt.env.Store.ListMetrics(r.Context(), store.MetricFilter{
		DistrictID: id,
		Limit:      months,
	})
	if err != nil {
		zap.L().Error("district trends", zap.String("district", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch trend data")
		return
	}
	if len(metrics) == 0 {
		writeError(w, http.StatusNotFound, "no trend data found for this district")
		return
	}

	trends := make([]trendPoint, len(metrics))
	for i, m := range metrics {
		trends[len(metrics)-1-i] = trendPoint{
			Period:             fmt.Sprintf("%d-%02d", m.Year, m.Month),
			EmploymentRate:     m.EmploymentRate,
			WorkCompletionRate: m.WorkCompletionRate,
			WagePaymentRate:    m.WagePaymentRate,
			TotalHouseholds:    m.TotalHouseholds,
			TotalPersons:       m.TotalPersons,
			TotalWorkdays:      m.TotalWorkdays,
			TotalWages:         m.TotalWages,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"district_id": id,
		"trends":      trends,
		"months":      months,
	})
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
