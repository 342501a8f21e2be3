// Package api exposes the HTTP surface consumed by the UI layer.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samebrave/StepScape/internal/aggregate"
	"github.com/samebrave/StepScape/internal/auth"
	"github.com/samebrave/StepScape/internal/domain"
)

// Handler coordinates HTTP requests with the ingestion service and the
// aggregation engine.
type Handler struct {
	service *domain.Service
	engine  *aggregate.Engine
	now     func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, engine *aggregate.Engine) *Handler {
	return &Handler{
		service: service,
		engine:  engine,
		now:     time.Now,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/steps/today", h.today)
	mux.HandleFunc("/v1/steps/day", h.day)
	mux.HandleFunc("/v1/steps/total", h.total)
	mux.HandleFunc("/v1/steps/aggregate", h.aggregateBuckets)
	mux.HandleFunc("/v1/steps/sync", h.sync)
	mux.HandleFunc("/v1/steps/logs", h.logs)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) today(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	now := h.now()
	total, err := h.service.IngestDay(r.Context(), claims.Subject, now)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TodayResponse{
		Date:       domain.StartOfDay(now, h.service.Zone()).Format("2006-01-02"),
		TotalSteps: total,
	})
}

func (h *Handler) day(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	points, err := h.engine.Day(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{Points: points})
}

// total serves the stored sum for an arbitrary calendar day, without
// touching the provider. Defaults to today.
func (h *Handler) total(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	date := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.service.Zone())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	totalSteps, err := h.service.TotalForDate(r.Context(), claims.Subject, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalResponse{
		Date:       domain.StartOfDay(date, h.service.Zone()).Format("2006-01-02"),
		TotalSteps: totalSteps,
	})
}

func (h *Handler) aggregateBuckets(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	granularity, err := aggregate.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if granularity == aggregate.GranularityDay {
		writeError(w, http.StatusBadRequest, "invalid_request", "day granularity is served by /v1/steps/day")
		return
	}

	buckets, err := h.engine.Buckets(r.Context(), claims.Subject, granularity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AggregateResponse{
		Granularity: string(granularity),
		Buckets:     buckets,
	})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.requireWrite(w, r)
	if !ok {
		return
	}

	synced, err := h.service.SyncUnsynced(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Synced: synced})
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listLogs(w, r)
	case http.MethodPost:
		h.saveLog(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	var records []domain.StepRecord
	var err error
	if r.URL.Query().Get("all") == "true" {
		records, err = h.service.AllLogs(r.Context(), claims.Subject)
	} else {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, parseErr := strconv.Atoi(raw)
			if parseErr != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
				return
			}
			limit = parsed
		}
		records, err = h.service.RecentLogs(r.Context(), claims.Subject, limit)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := LogsResponse{Items: make([]StepLogView, 0, len(records))}
	for _, record := range records {
		resp.Items = append(resp.Items, toStepLogView(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) saveLog(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireWrite(w, r)
	if !ok {
		return
	}

	var req SaveLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	record := domain.StepRecord{
		Timestamp: req.Timestamp,
		Steps:     req.Steps,
		UserID:    claims.Subject,
	}
	if err := h.service.SaveLog(r.Context(), record); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeStepsRead) && !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:read required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) requireWrite(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:write required")
		return nil, false
	}
	return claims, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrStorage) {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
