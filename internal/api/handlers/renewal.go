package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/api/middleware"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
	"github.com/stlaurent/renewal-engine/internal/service"
)

// RenewalHandler handles cycle and occurrence endpoints
type RenewalHandler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewRenewalHandler creates a new handler
func NewRenewalHandler(svc *service.Service, logger *zap.Logger) *RenewalHandler {
	return &RenewalHandler{service: svc, logger: logger}
}

// CycleRoutes returns routes mounted under /cycles
func (h *RenewalHandler) CycleRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateCycle)
	r.Post("/check-duplicate", h.CheckDuplicate)
	r.Get("/{id}", h.GetCycle)
	r.With(middleware.RequireAdmin).Delete("/{id}", h.DeleteCycle)
	return r
}

// RenewalRoutes returns routes mounted under /renewals
func (h *RenewalHandler) RenewalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Planning)
	r.Post("/quick-add", h.QuickAdd)
	r.Patch("/{id}", h.PatchOccurrence)
	r.Post("/{id}/notify", h.Notify)
	r.Post("/{id}/notified", h.Notified)
	return r
}

type occurrenceResponse struct {
	ID          string     `json:"id"`
	CycleID     string     `json:"cycle_id"`
	Index       int        `json:"index"`
	Date        string     `json:"date"`
	Status      string     `json:"status"`
	PreparedAt  *time.Time `json:"prepared_at,omitempty"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type cycleResponse struct {
	ID            string               `json:"id"`
	PatientID     string               `json:"patient_id"`
	FirstDelivery string               `json:"first_delivery"`
	RenewalCount  int                  `json:"renewal_count"`
	IntervalDays  int                  `json:"interval_days"`
	Status        string               `json:"status"`
	CreatedBy     string               `json:"created_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	Occurrences   []occurrenceResponse `json:"occurrences,omitempty"`
}

func toOccurrenceResponse(o renewal.Occurrence) occurrenceResponse {
	return occurrenceResponse{
		ID:          o.ID,
		CycleID:     o.CycleID,
		Index:       o.Index,
		Date:        o.Date.Format(dateLayout),
		Status:      string(o.Status),
		PreparedAt:  o.PreparedAt,
		NotifiedAt:  o.NotifiedAt,
		CompletedAt: o.CompletedAt,
	}
}

func toCycleResponse(c renewal.Cycle, occurrences []renewal.Occurrence) cycleResponse {
	resp := cycleResponse{
		ID:            c.ID,
		PatientID:     c.PatientID,
		FirstDelivery: c.FirstDelivery.Format(dateLayout),
		RenewalCount:  c.RenewalCount,
		IntervalDays:  c.IntervalDays,
		Status:        string(c.Status),
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
	}
	for _, o := range occurrences {
		resp.Occurrences = append(resp.Occurrences, toOccurrenceResponse(o))
	}
	return resp
}

// CreateCycleRequest is the request body for cycle creation
type CreateCycleRequest struct {
	PatientID     string `json:"patient_id"`
	FirstDelivery string `json:"first_delivery"`
	RenewalCount  int    `json:"renewal_count"`
	IntervalDays  int    `json:"interval_days,omitempty"`
}

// CreateCycle handles POST /cycles
func (h *RenewalHandler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	first, err := parseDate(req.FirstDelivery)
	if err != nil {
		jsonError(w, "first_delivery must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateCycle(ctx, service.CreateCycleRequest{
		PatientID:     req.PatientID,
		FirstDelivery: first,
		RenewalCount:  req.RenewalCount,
		IntervalDays:  req.IntervalDays,
		CreatedBy:     middleware.GetOperator(ctx),
	})
	if err != nil {
		domainError(w, err)
		return
	}
	if result.Skipped {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": "skipped_duplicate",
			"reason": "a cycle with this first delivery already exists for the patient",
		})
		return
	}

	writeJSON(w, http.StatusCreated, toCycleResponse(*result.Cycle, result.Occurrences))
}

// CheckDuplicateRequest is the request body for the advisory duplicate check
type CheckDuplicateRequest struct {
	PatientID     string `json:"patient_id"`
	FirstDelivery string `json:"first_delivery"`
}

// CheckDuplicate handles POST /cycles/check-duplicate
func (h *RenewalHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req CheckDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	first, err := parseDate(req.FirstDelivery)
	if err != nil {
		jsonError(w, "first_delivery must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	result, err := h.service.CheckDuplicate(r.Context(), req.PatientID, first)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collides":          result.Collides,
		"existing_cycle_id": result.ExistingCycleID,
	})
}

// GetCycle handles GET /cycles/{id}
func (h *RenewalHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(schedule.Cycle, schedule.Occurrences))
}

// DeleteCycle handles DELETE /cycles/{id}. Admin only.
func (h *RenewalHandler) DeleteCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCycle(r.Context(), chi.URLParam(r, "id")); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QuickAddRequest is the request body for ad-hoc single renewals
type QuickAddRequest struct {
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
}

// QuickAdd handles POST /renewals/quick-add
func (h *RenewalHandler) QuickAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QuickAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	result, err := h.service.QuickAdd(ctx, req.PatientID, date, middleware.GetOperator(ctx))
	if err != nil {
		domainError(w, err)
		return
	}
	if result.Skipped {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": "skipped_duplicate",
			"reason": "a cycle with this date already exists for the patient",
		})
		return
	}
	writeJSON(w, http.StatusCreated, toCycleResponse(*result.Cycle, result.Occurrences))
}

type planningEntry struct {
	Occurrence  occurrenceResponse `json:"occurrence"`
	PatientID   string             `json:"patient_id"`
	PatientName string             `json:"patient_name"`
	Phone       string             `json:"phone"`
	Consent     bool               `json:"consent"`
}

// Planning handles GET /renewals?date=YYYY-MM-DD&status=READY
func (h *RenewalHandler) Planning(w http.ResponseWriter, r *http.Request) {
	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		jsonError(w, "date query parameter is required", http.StatusBadRequest)
		return
	}
	day, err := parseDate(dateParam)
	if err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	status := renewal.OccurrenceStatus(r.URL.Query().Get("status"))

	entries, err := h.service.PlanningForDay(r.Context(), day, status)
	if err != nil {
		domainError(w, err)
		return
	}

	resp := make([]planningEntry, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, planningEntry{
			Occurrence:  toOccurrenceResponse(e.Occurrence),
			PatientID:   e.PatientID,
			PatientName: e.PatientName,
			Phone:       e.Phone,
			Consent:     e.Consent,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PatchOccurrenceRequest carries a status move, a date change, or both.
type PatchOccurrenceRequest struct {
	Status string `json:"status,omitempty"`
	Date   string `json:"date,omitempty"`
}

// PatchOccurrence handles PATCH /renewals/{id}
func (h *RenewalHandler) PatchOccurrence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req PatchOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status == "" && req.Date == "" {
		jsonError(w, "nothing to update", http.StatusBadRequest)
		return
	}

	var occ *renewal.Occurrence
	var err error
	if req.Date != "" {
		date, parseErr := parseDate(req.Date)
		if parseErr != nil {
			jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		occ, err = h.service.Reschedule(ctx, id, date)
		if err != nil {
			domainError(w, err)
			return
		}
	}
	if req.Status != "" {
		occ, err = h.service.Transition(ctx, id, renewal.OccurrenceStatus(req.Status))
		if err != nil {
			domainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toOccurrenceResponse(*occ))
}

// Notify handles POST /renewals/{id}/notify: queue the SMS request.
func (h *RenewalHandler) Notify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.service.RequestNotification(ctx, id, middleware.GetOperator(ctx)); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// NotifiedRequest is the callback body from the external sender.
type NotifiedRequest struct {
	Success bool   `json:"success"`
	APIID   string `json:"api_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Notified handles POST /renewals/{id}/notified: record the send outcome.
func (h *RenewalHandler) Notified(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req NotifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ConfirmNotified(r.Context(), id, req.Success, req.APIID, req.Error); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// KPI handles GET /kpi?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *RenewalHandler) KPI(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		jsonError(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		jsonError(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	report, err := h.service.KPI(r.Context(), from, to)
	if err != nil {
		domainError(w, err)
		return
	}

	byStatus := make(map[string]int64, len(report.ByStatus))
	for status, n := range report.ByStatus {
		byStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":      report.From.Format(dateLayout),
		"to":        report.To.Format(dateLayout),
		"total":     report.Total,
		"by_status": byStatus,
	})
}
