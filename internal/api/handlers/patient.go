package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/api/middleware"
	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/service"
)

// PatientHandler handles patient endpoints
type PatientHandler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewPatientHandler creates a new handler
func NewPatientHandler(svc *service.Service, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{service: svc, logger: logger}
}

// Routes returns routes mounted under /patients
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Register)
	r.Get("/", h.Search)
	r.Get("/terminated", h.Terminated)
	r.Post("/bulk-cancel", h.BulkCancel)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Get("/{id}/cycles", h.Cycles)
	r.Post("/{id}/deactivate", h.Deactivate)
	r.Post("/{id}/reactivate", h.Reactivate)
	r.With(middleware.RequireAdmin).Post("/{id}/anonymize", h.Anonymize)
	r.With(middleware.RequireAdmin).Delete("/{id}", h.Delete)
	return r
}

type patientResponse struct {
	ID          string    `json:"id"`
	LastName    string    `json:"last_name"`
	FirstName   string    `json:"first_name"`
	Phone       string    `json:"phone"`
	PhonePretty string    `json:"phone_pretty"`
	Consent     bool      `json:"consent"`
	Active      bool      `json:"active"`
	Notes       string    `json:"notes,omitempty"`
	RecruitedAt time.Time `json:"recruited_at"`
}

func toPatientResponse(p patient.Patient) patientResponse {
	return patientResponse{
		ID:          p.ID,
		LastName:    p.LastName,
		FirstName:   p.FirstName,
		Phone:       p.Phone,
		PhonePretty: patient.FormatPhone(p.Phone),
		Consent:     p.Consent,
		Active:      p.Active,
		Notes:       p.Notes,
		RecruitedAt: p.RecruitedAt,
	}
}

// PatientRequest is the request body for registration and updates
type PatientRequest struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
	Consent   bool   `json:"consent"`
	Notes     string `json:"notes,omitempty"`
}

// Register handles POST /patients
func (h *PatientHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.RegisterPatient(r.Context(), service.RegisterPatientRequest{
		LastName:  req.LastName,
		FirstName: req.FirstName,
		Phone:     req.Phone,
		Consent:   req.Consent,
		Notes:     req.Notes,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(*p))
}

// Search handles GET /patients?search=&limit=
func (h *PatientHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	patients, err := h.service.SearchPatients(r.Context(), r.URL.Query().Get("search"), limit)
	if err != nil {
		domainError(w, err)
		return
	}

	resp := make([]patientResponse, 0, len(patients))
	for _, p := range patients {
		resp = append(resp, toPatientResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(*p))
}

// Update handles PUT /patients/{id}
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdatePatient(r.Context(), chi.URLParam(r, "id"), service.RegisterPatientRequest{
		LastName:  req.LastName,
		FirstName: req.FirstName,
		Phone:     req.Phone,
		Consent:   req.Consent,
		Notes:     req.Notes,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(*p))
}

// Cycles handles GET /patients/{id}/cycles
func (h *PatientHandler) Cycles(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.SchedulesForPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		domainError(w, err)
		return
	}

	resp := make([]cycleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, toCycleResponse(s.Cycle, s.Occurrences))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Terminated handles GET /patients/terminated: the fully-completed list.
func (h *PatientHandler) Terminated(w http.ResponseWriter, r *http.Request) {
	completed, err := h.service.DetectFullyCompletedPatients(r.Context())
	if err != nil {
		domainError(w, err)
		return
	}

	type entry struct {
		Patient    patientResponse `json:"patient"`
		CycleCount int             `json:"cycle_count"`
	}
	resp := make([]entry, 0, len(completed))
	for _, c := range completed {
		resp = append(resp, entry{Patient: toPatientResponse(c.Patient), CycleCount: c.CycleCount})
	}
	writeJSON(w, http.StatusOK, resp)
}

// BulkCancelRequest lists the patients whose active cycles to cancel.
type BulkCancelRequest struct {
	PatientIDs []string `json:"patient_ids"`
}

// BulkCancel handles POST /patients/bulk-cancel
func (h *PatientHandler) BulkCancel(w http.ResponseWriter, r *http.Request) {
	var req BulkCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.PatientIDs) == 0 {
		jsonError(w, "patient_ids is required", http.StatusBadRequest)
		return
	}

	results := h.service.CancelActiveRenewals(r.Context(), req.PatientIDs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// Deactivate handles POST /patients/{id}/deactivate
func (h *PatientHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivatePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// Reactivate handles POST /patients/{id}/reactivate
func (h *PatientHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReactivatePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reactivated"})
}

// Anonymize handles POST /patients/{id}/anonymize. Admin only.
func (h *PatientHandler) Anonymize(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AnonymizePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "anonymized"})
}

// Delete handles DELETE /patients/{id}. Admin only.
func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
