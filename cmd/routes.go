package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/scheduler"
	"github.com/sells-group/workstat/internal/store"
	"github.com/sells-group/workstat/internal/syncer"
)

// routes carries the handler dependencies for the read API.
type routes struct {
	env   *appEnv
	sched *scheduler.Scheduler
}

// newRouter builds the chi router serving the cached data and the cache
// administration endpoints.
func newRouter(env *appEnv, sched *scheduler.Scheduler, origins []string) http.Handler {
	rt := &routes{env: env, sched: sched}

	r := chi.NewRouter()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", rt.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/districts", rt.listDistricts)
		r.Post("/districts/sync", rt.triggerSync)
		r.Get("/districts/{id}", rt.getDistrict)
		r.Get("/districts/{id}/performance", rt.districtPerformance)

		r.Post("/compare", rt.compareDistricts)
		r.Get("/compare/states", rt.compareStates)
		r.Get("/compare/trends/{id}", rt.districtTrends)

		r.Get("/cache/status", rt.cacheStatus)
		r.Get("/cache/export", rt.exportCache)
		r.Get("/cache/freshness", rt.cacheFreshness)
		r.Get("/cache/cron", rt.cronStatus)
		r.Delete("/cache", rt.clearCache)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (rt *routes) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *routes) listDistricts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DistrictFilter{
		State:  q.Get("state"),
		Search: q.Get("search"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	districts, err := rt.env.Store.ListDistricts(r.Context(), filter)
	if err != nil {
		zap.L().Error("list districts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list districts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"districts": districts,
		"count":     len(districts),
	})
}

func (rt *routes) getDistrict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := rt.env.Store.FindDistrictByID(r.Context(), id)
	if err != nil {
		zap.L().Error("get district", zap.String("district", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load district")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "district not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// metricWithScore decorates a metric row with its composite performance score.
type metricWithScore struct {
	model.Metric
	PerformanceScore int `json:"performance_score"`
}

func (rt *routes) districtPerformance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	d, err := rt.env.Store.FindDistrictByID(ctx, id)
	if err != nil {
		zap.L().Error("get district", zap.String("district", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load district")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "district not found")
		return
	}

	metrics, err := rt.env.Store.ListMetrics(ctx, store.MetricFilter{DistrictID: id, Limit: 12})
	if err != nil {
		zap.L().Error("list metrics", zap.String("district", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	scored := make([]metricWithScore, len(metrics))
	var total int
	for i, m := range metrics {
		score := m.PerformanceScore()
		scored[i] = metricWithScore{Metric: m, PerformanceScore: score}
		total += score
	}

	avg := 0
	if len(scored) > 0 {
		avg = total / len(scored)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"district": d,
		"metrics":  scored,
		"summary": map[string]any{
			"months":        len(scored),
			"average_score": avg,
		},
	})
}

func (rt *routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		// An empty body means a plain non-forced sync.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	run, err := rt.env.Syncer.TriggerSync(r.Context(), req.Force)
	switch {
	case errors.Is(err, syncer.ErrNoData):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "no data received from upstream",
			"run":   run,
		})
		return
	case err != nil:
		zap.L().Error("manual sync failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "sync failed",
			"run":   run,
		})
		return
	}

	status := http.StatusOK
	if run.Status == model.RunStatusAlreadyRunning {
		status = http.StatusConflict
	}
	writeJSON(w, status, run)
}

func (rt *routes) cacheStatus(w http.ResponseWriter, r *http.Request) {
	cs, err := rt.env.Reporter.CacheStatus(r.Context())
	if err != nil {
		zap.L().Error("cache status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute cache status")
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (rt *routes) cacheFreshness(w http.ResponseWriter, r *http.Request) {
	fr, err := rt.env.Reporter.Freshness(r.Context())
	if err != nil {
		zap.L().Error("cache freshness", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute freshness")
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (rt *routes) cronStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.sched.Status())
}

// exportCache dumps cached metric rows as JSON or CSV, capped at 1000 rows.
func (rt *routes) exportCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MetricFilter{State: q.Get("state"), Limit: 1000}
	filter.Year, _ = strconv.Atoi(q.Get("year"))
	filter.Month, _ = strconv.Atoi(q.Get("month"))

	metrics, err := rt.env.Store.ListMetrics(r.Context(), filter)
	if err != nil {
		zap.L().Error("export cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export cached data")
		return
	}

	if q.Get("format") == "csv" {
		writeMetricsCSV(w, metrics)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":     metrics,
		"count":       len(metrics),
		"exported_at": time.Now().UTC(),
		"criteria": map[string]any{
			"state": q.Get("state"),
			"year":  filter.Year,
			"month": filter.Month,
		},
	})
}

func writeMetricsCSV(w http.ResponseWriter, metrics []model.Metric) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="workstat_metrics.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"district_id", "district_name", "state_name", "year", "month",
		"financial_year", "total_households", "households_provided_work",
		"total_persons", "persons_provided_work", "total_workdays",
		"workdays_generated", "total_wages", "wages_paid",
		"employment_rate", "work_completion_rate", "wage_payment_rate",
		"last_updated",
	})
	for _, m := range metrics {
		_ = cw.Write([]string{
			m.DistrictID, m.DistrictName, m.StateName,
			strconv.Itoa(m.Year), strconv.Itoa(m.Month), m.FinancialYear,
			strconv.FormatInt(m.TotalHouseholds, 10),
			strconv.FormatInt(m.HouseholdsProvidedWork, 10),
			strconv.FormatInt(m.TotalPersons, 10),
			strconv.FormatInt(m.PersonsProvidedWork, 10),
			strconv.FormatInt(m.TotalWorkdays, 10),
			strconv.FormatInt(m.WorkdaysGenerated, 10),
			strconv.FormatFloat(m.TotalWages, 'f', -1, 64),
			strconv.FormatFloat(m.WagesPaid, 'f', -1, 64),
			strconv.FormatFloat(m.EmploymentRate, 'f', -1, 64),
			strconv.FormatFloat(m.WorkCompletionRate, 'f', -1, 64),
			strconv.FormatFloat(m.WagePaymentRate, 'f', -1, 64),
			m.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		zap.L().Warn("write csv export", zap.Error(err))
	}
}

const clearConfirmToken = "CLEAR_CACHE"

func (rt *routes) clearCache(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != clearConfirmToken {
		writeError(w, http.StatusBadRequest, `cache clear requires {"confirm":"CLEAR_CACHE"}`)
		return
	}

	ctx := r.Context()
	metrics, err := rt.env.Store.DeleteAll(ctx, store.EntityMetrics)
	if err != nil {
		zap.L().Error("clear metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	districts, err := rt.env.Store.DeleteAll(ctx, store.EntityDistricts)
	if err != nil {
		zap.L().Error("clear districts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}

	zap.L().Info("cache cleared",
		zap.Int64("districts", districts),
		zap.Int64("metrics", metrics),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_districts": districts,
		"deleted_metrics":   metrics,
	})
}
