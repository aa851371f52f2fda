/*
handlers.go - HTTP API handlers for the plan-charge engine

PURPOSE:
  Exposes the reconciliation, entitlement, forecast and sync services
  via REST. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Collaborators:
    GET    /api/collaborators              Unified merged view
    PATCH  /api/collaborators/{id}         Update active/eligibility
    GET    /api/collaborators/stats        Per-source totals

  Meal vouchers:
    GET    /api/tr/rights/{year}/{month}          All entitlements
    GET    /api/tr/rights/{year}/{month}/{email}  One entitlement
    GET    /api/tr/working-days/{year}/{month}    Calendar breakdown
    GET    /api/tr/export/{year}/{month}          CSV export

  Plan de charge:
    GET    /api/plan-charge/{year}/{month}

  Forecasts:
    GET    /api/forecasts                  Month listing
    POST   /api/forecasts                  Single upsert
    PUT    /api/forecasts/{id}             Rewrite hours
    DELETE /api/forecasts/{id}             Delete one row
    POST   /api/forecasts/batch            Date-range allocation
    GET    /api/forecasts/{id}/group       Batch reconstruction
    DELETE /api/forecasts/group            Delete a whole batch

  Sync:
    POST   /api/sync/payroll               Source-A chain
    POST   /api/sync/timetrack             Source-B chain
    POST   /api/sync/full                  Both chains
    GET    /api/sync/status                Latest run per source

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate
  - 502: Upstream provider failure
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plancharge/engine/cache"
	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/forecast"
	"github.com/plancharge/engine/provider"
	"github.com/plancharge/engine/reconcile"
	"github.com/plancharge/engine/store"
	"github.com/plancharge/engine/syncer"
	"github.com/plancharge/engine/voucher"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    store.Store
	Engine   *reconcile.Engine
	Voucher  *voucher.Service
	Forecast *forecast.Service
	Syncer   *syncer.Service
	Cache    *cache.PlanChargeCache
	Holidays calendar.HolidayProvider
}

// NewHandler wires the services around one store. holidays defaults to the
// French calendar; cache may be nil.
func NewHandler(st store.Store, sync *syncer.Service, planCache *cache.PlanChargeCache) *Handler {
	holidays := calendar.NewFrance()
	engine := reconcile.New(st)
	return &Handler{
		Store:    st,
		Engine:   engine,
		Voucher:  voucher.New(st, engine, holidays),
		Forecast: forecast.New(st, holidays),
		Syncer:   sync,
		Cache:    planCache,
		Holidays: holidays,
	}
}

// =============================================================================
// COLLABORATOR ENDPOINTS
// =============================================================================

// ListCollaborators returns the unified merged view.
// GET /api/collaborators?active_only=true
func (h *Handler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	views, err := h.Engine.Views(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to merge collaborators", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// UpdateCollaborator patches one unified collaborator.
// PATCH /api/collaborators/{id}
func (h *Handler) UpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateCollaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	view, err := h.Engine.Update(r.Context(), id, reconcile.UpdateFields{
		IsActive:           req.IsActive,
		EligibleForVoucher: req.EligibleForVoucher,
		Reason:             req.Reason,
		ModifiedBy:         req.ModifiedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrNotFound):
			writeError(w, http.StatusNotFound, "Collaborator not found", err)
		case errors.Is(err, reconcile.ErrEmptyEmail):
			writeError(w, http.StatusBadRequest, "Collaborator has no email to attach an override to", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to update collaborator", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetStats returns per-source and merged counts.
// GET /api/collaborators/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.ComputeStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// MEAL-VOUCHER ENDPOINTS
// =============================================================================

// GetAllTRRights computes the month's entitlements for the whole roster.
// GET /api/tr/rights/{year}/{month}
func (h *Handler) GetAllTRRights(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	all, err := h.Voucher.ComputeAll(r.Context(), year, month)
	if err != nil {
		h.writeVoucherError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// GetTRRights computes one employee's entitlement.
// GET /api/tr/rights/{year}/{month}/{email}
func (h *Handler) GetTRRights(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	email := chi.URLParam(r, "email")
	ent, err := h.Voucher.ComputeEntitlement(r.Context(), email, year, month)
	if err != nil {
		h.writeVoucherError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

// GetWorkingDays returns the month's calendar partition.
// GET /api/tr/working-days/{year}/{month}
func (h *Handler) GetWorkingDays(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	mc, err := calendar.ComputeMonth(year, month, h.Holidays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingDaysDTO{
		Year:             year,
		Month:            int(month),
		WorkingDaysCount: len(mc.WorkingDays),
		WorkingDays:      isoDates(mc.WorkingDays),
		Holidays:         isoDates(mc.Holidays),
		Weekends:         isoDates(mc.Weekends),
		TotalDays:        mc.TotalDays(),
	})
}

// ExportTRCSV streams the month's entitlements in the ordering tool's
// fixed CSV format.
// GET /api/tr/export/{year}/{month}
func (h *Handler) ExportTRCSV(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	all, err := h.Voucher.ComputeAll(r.Context(), year, month)
	if err != nil {
		h.writeVoucherError(w, err)
		return
	}
	csv := voucher.GenerateCSV(all)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="tr_rights_%d_%02d.csv"`, year, int(month)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csv))
}

func (h *Handler) writeVoucherError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, "Invalid month", err)
	case errors.Is(err, voucher.ErrEmployeeNotFound):
		writeError(w, http.StatusNotFound, "Employee not found in payroll", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to compute entitlements", err)
	}
}

// =============================================================================
// PLAN-CHARGE ENDPOINT
// =============================================================================

// GetPlanCharge assembles the month projection, served from cache when warm.
// GET /api/plan-charge/{year}/{month}
func (h *Handler) GetPlanCharge(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	if pc, hit := h.Cache.Get(r.Context(), year, month); hit {
		writeJSON(w, http.StatusOK, pc)
		return
	}
	pc, err := h.Forecast.PlanCharge(r.Context(), year, month)
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidMonth) {
			writeError(w, http.StatusBadRequest, "Invalid month", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to build plan de charge", err)
		return
	}
	h.Cache.Set(r.Context(), pc)
	writeJSON(w, http.StatusOK, pc)
}

// =============================================================================
// FORECAST ENDPOINTS
// =============================================================================

// ListForecasts lists a month of forecasts.
// GET /api/forecasts?year=2025&month=3&collaborator_id=...
func (h *Handler) ListForecasts(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	monthNum, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	mf, err := h.Forecast.Month(r.Context(), year, time.Month(monthNum), r.URL.Query().Get("collaborator_id"))
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidMonth) {
			writeError(w, http.StatusBadRequest, "Invalid month", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to list forecasts", err)
		return
	}
	writeJSON(w, http.StatusOK, mf)
}

// CreateForecast upserts one forecast day.
// POST /api/forecasts
func (h *Handler) CreateForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	row, action, err := h.Forecast.Upsert(r.Context(), forecast.UpsertParams{
		CollaboratorID: req.CollaboratorID,
		ProjectID:      req.ProjectID,
		TaskID:         req.TaskID,
		Date:           date,
		Hours:          req.Hours,
		Description:    req.Description,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	h.Cache.Invalidate(r.Context(), date.Year(), date.Month())

	status := http.StatusOK
	if action == "created" {
		status = http.StatusCreated
	}
	writeJSON(w, status, ForecastWriteDTO{
		ID:      row.ID,
		Action:  action,
		Message: fmt.Sprintf("Forecast %s", action),
	})
}

// UpdateForecast rewrites one row's hours and description.
// PUT /api/forecasts/{id}
func (h *Handler) UpdateForecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	row, err := h.Forecast.UpdateHours(r.Context(), id, req.Hours, req.Description)
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	h.Cache.Invalidate(r.Context(), row.Date.Year(), row.Date.Month())
	writeJSON(w, http.StatusOK, ForecastWriteDTO{ID: row.ID, Action: "updated", Message: "Forecast updated"})
}

// DeleteForecast removes one row.
// DELETE /api/forecasts/{id}
func (h *Handler) DeleteForecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := h.Store.GetForecast(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete forecast", err)
		return
	}
	if err := h.Forecast.Delete(r.Context(), id); err != nil {
		h.writeForecastError(w, err)
		return
	}
	if row != nil {
		h.Cache.Invalidate(r.Context(), row.Date.Year(), row.Date.Month())
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Forecast deleted"})
}

// CreateForecastBatch spreads an allocation over a date range.
// POST /api/forecasts/batch
func (h *Handler) CreateForecastBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Forecast.CreateBatch(r.Context(), forecast.BatchParams{
		CollaboratorID: req.CollaboratorID,
		ProjectID:      req.ProjectID,
		TaskID:         req.TaskID,
		StartDate:      start,
		EndDate:        end,
		HoursPerDay:    req.HoursPerDay,
		Description:    req.Description,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	h.invalidateMonths(r.Context(), start, end)
	writeJSON(w, http.StatusCreated, res)
}

// GetForecastGroup reconstructs the batch around one row.
// GET /api/forecasts/{id}/group
func (h *Handler) GetForecastGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.Forecast.Group(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteForecastGroup removes a whole reconstructed batch.
// DELETE /api/forecasts/group
func (h *Handler) DeleteForecastGroup(w http.ResponseWriter, r *http.Request) {
	var req DeleteGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ForecastID == "" {
		writeError(w, http.StatusBadRequest, "forecast_id is required", nil)
		return
	}
	g, err := h.Forecast.Group(r.Context(), req.ForecastID)
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	n, err := h.Forecast.DeleteGroup(r.Context(), req.ForecastID)
	if err != nil {
		h.writeForecastError(w, err)
		return
	}
	h.invalidateMonths(r.Context(), g.StartDate, g.EndDate)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Forecast group deleted", "deleted": n})
}

func (h *Handler) writeForecastError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, forecast.ErrNotFound):
		writeError(w, http.StatusNotFound, "Forecast not found", err)
	case errors.Is(err, forecast.ErrInvalidHours), errors.Is(err, forecast.ErrInvalidRange),
		errors.Is(err, calendar.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, "Invalid forecast input", err)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "Forecast already exists", err)
	default:
		writeError(w, http.StatusInternalServerError, "Forecast operation failed", err)
	}
}

// =============================================================================
// SYNC ENDPOINTS
// =============================================================================

// SyncPayroll runs the whole source-A chain.
// POST /api/sync/payroll
func (h *Handler) SyncPayroll(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func() (syncer.Counts, error) {
		return h.Syncer.SyncPayrollAll(r.Context(), "api")
	})
}

// SyncTimetrack runs the whole source-B chain.
// POST /api/sync/timetrack
func (h *Handler) SyncTimetrack(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func() (syncer.Counts, error) {
		return h.Syncer.SyncTimetrackAll(r.Context(), "api")
	})
}

// SyncFull runs both chains in dependency order.
// POST /api/sync/full
func (h *Handler) SyncFull(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func() (syncer.Counts, error) {
		return h.Syncer.FullSync(r.Context(), "api")
	})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, fn func() (syncer.Counts, error)) {
	if h.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync is not configured", nil)
		return
	}
	counts, err := fn()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, provider.ErrUpstream) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, SyncResultDTO{Status: "failed", Counts: counts, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SyncResultDTO{Status: "success", Counts: counts})
}

// GetSyncStatus returns the latest run per source.
// GET /api/sync/status
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	out := SyncStatusDTO{}
	if run, err := h.Store.LatestSyncRun(r.Context(), store.SourcePayroll); err == nil {
		out.Payroll = toSyncRunDTO(run)
	}
	if run, err := h.Store.LatestSyncRun(r.Context(), store.SourceTimetrack); err == nil {
		out.Timetrack = toSyncRunDTO(run)
	}
	if run, err := h.Store.LatestSyncRun(r.Context(), store.SourceFull); err == nil {
		out.Full = toSyncRunDTO(run)
	}
	writeJSON(w, http.StatusOK, out)
}

func toSyncRunDTO(run *store.SyncRun) *SyncRunDTO {
	if run == nil {
		return nil
	}
	return &SyncRunDTO{
		ID:              run.ID,
		Source:          string(run.Source),
		SyncType:        run.SyncType,
		Status:          run.Status,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		DurationSeconds: run.DurationSeconds,
		RecordsCreated:  run.RecordsCreated,
		RecordsUpdated:  run.RecordsUpdated,
		RecordsFailed:   run.RecordsFailed,
		ErrorMessage:    run.ErrorMessage,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// invalidateMonths drops the cached plan charge for every month the range
// touches. Anchored to the first of the month so a day-31 start cannot step
// over February.
func (h *Handler) invalidateMonths(ctx context.Context, start, end time.Time) {
	d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !d.After(end) {
		h.Cache.Invalidate(ctx, d.Year(), d.Month())
		d = d.AddDate(0, 1, 0)
	}
}

// yearMonth parses the {year}/{month} URL params, writing a 400 on bad input.
func (h *Handler) yearMonth(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, 0, false
	}
	monthNum, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return 0, 0, false
	}
	return year, time.Month(monthNum), true
}

func isoDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
