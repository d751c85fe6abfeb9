package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/store"
)

func seedRatedMetric(t *testing.T, st store.Store, id, state string, year, month int, emp, work, wage float64) {
	t.Helper()
	require.NoError(t, st.UpsertMetric(context.Background(), model.Metric{
		DistrictID:         id,
		DistrictName:       "District " + id,
		StateName:          state,
		Year:               year,
		Month:              month,
		TotalHouseholds:    1000,
		TotalWages:         50000,
		EmploymentRate:     emp,
		WorkCompletionRate: work,
		WagePaymentRate:    wage,
		LastUpdated:        time.Now().UTC(),
	}))
}

func TestRoutes_CompareDistricts_RequiresTwoIDs(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]any{"district_ids": []string{"D1"}})
	rr := doRequest(t, h, http.MethodPost, "/api/compare", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutes_CompareDistricts_NoDataIs404(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]any{"district_ids": []string{"D1", "D2"}})
	rr := doRequest(t, h, http.MethodPost, "/api/compare", body)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRoutes_CompareDistricts_RanksByScore(t *testing.T) {
	h, st := newTestRouter(t, nil)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 3, 80, 40, 90)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 4, 60, 60, 70)
	seedRatedMetric(t, st, "D2", "Rajasthan", 2024, 3, 90, 90, 90)
	// Not part of the request, must not leak in.
	seedRatedMetric(t, st, "D3", "Rajasthan", 2024, 3, 100, 100, 100)

	body, _ := json.Marshal(map[string]any{"district_ids": []string{"D1", "D2"}})
	rr := doRequest(t, h, http.MethodPost, "/api/compare", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Comparison []struct {
			DistrictID string `json:"district_id"`
			Latest     struct {
				Month int `json:"month"`
			} `json:"latest"`
			Averages struct {
				EmploymentRate     float64 `json:"employment_rate"`
				WorkCompletionRate float64 `json:"work_completion_rate"`
				WagePaymentRate    float64 `json:"wage_payment_rate"`
			} `json:"averages"`
			Totals struct {
				TotalHouseholds int64 `json:"total_households"`
			} `json:"totals"`
			PerformanceScore int `json:"performance_score"`
		} `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Comparison, 2)

	assert.Equal(t, "D2", resp.Comparison[0].DistrictID)
	assert.Equal(t, 90, resp.Comparison[0].PerformanceScore)

	d1 := resp.Comparison[1]
	assert.Equal(t, "D1", d1.DistrictID)
	// Latest row is the most recent month; averages span both months.
	assert.Equal(t, 4, d1.Latest.Month)
	assert.InDelta(t, 70.0, d1.Averages.EmploymentRate, 1e-9)
	assert.InDelta(t, 50.0, d1.Averages.WorkCompletionRate, 1e-9)
	assert.InDelta(t, 80.0, d1.Averages.WagePaymentRate, 1e-9)
	assert.Equal(t, int64(2000), d1.Totals.TotalHouseholds)
	assert.Equal(t, 67, d1.PerformanceScore)
}

func TestRoutes_CompareStates(t *testing.T) {
	h, st := newTestRouter(t, nil)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 3, 80, 40, 90)
	seedRatedMetric(t, st, "D2", "Rajasthan", 2024, 3, 90, 90, 90)

	rr := doRequest(t, h, http.MethodGet, "/api/compare/states?year=2024", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		States []store.StateComparison `json:"states"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.States, 2)
	assert.Equal(t, "Rajasthan", resp.States[0].StateName)
	assert.InDelta(t, 90.0, resp.States[0].PerformanceScore, 1e-9)
	assert.Equal(t, "Maharashtra", resp.States[1].StateName)
}

func TestRoutes_DistrictTrends(t *testing.T) {
	h, st := newTestRouter(t, nil)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 1, 70, 70, 70)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 2, 75, 75, 75)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 3, 80, 80, 80)

	rr := doRequest(t, h, http.MethodGet, "/api/compare/trends/D1?months=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		DistrictID string `json:"district_id"`
		Months     int    `json:"months"`
		Trends     []struct {
			Period         string  `json:"period"`
			EmploymentRate float64 `json:"employment_rate"`
		} `json:"trends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "D1", resp.DistrictID)
	assert.Equal(t, 2, resp.Months)
	require.Len(t, resp.Trends, 2)

	// Two most recent months, oldest first.
	assert.Equal(t, "2024-02", resp.Trends[0].Period)
	assert.Equal(t, "2024-03", resp.Trends[1].Period)
	assert.InDelta(t, 80.0, resp.Trends[1].EmploymentRate, 1e-9)
}

func TestRoutes_DistrictTrends_NotFound(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := doRequest(t, h, http.MethodGet, "/api/compare/trends/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRoutes_ExportCacheJSON(t *testing.T) {
	h, st := newTestRouter(t, nil)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 3, 80, 40, 90)
	seedRatedMetric(t, st, "D2", "Rajasthan", 2024, 3, 90, 90, 90)

	rr := doRequest(t, h, http.MethodGet, "/api/cache/export?state=Rajasthan", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Records []model.Metric `json:"records"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "D2", resp.Records[0].DistrictID)
}

func TestRoutes_ExportCacheCSV(t *testing.T) {
	h, st := newTestRouter(t, nil)
	seedRatedMetric(t, st, "D1", "Maharashtra", 2024, 3, 80, 40, 90)
	seedRatedMetric(t, st, "D2", "Rajasthan", 2024, 3, 90, 90, 90)

	rr := doRequest(t, h, http.MethodGet, "/api/cache/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")

	records, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "district_id", records[0][0])
	assert.Equal(t, "last_updated", records[0][len(records[0])-1])
	for _, row := range records[1:] {
		assert.Len(t, row, len(records[0]))
	}
}