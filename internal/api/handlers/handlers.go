// Package handlers provides HTTP handlers for the renewal API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
	"github.com/stlaurent/renewal-engine/internal/service"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// domainError maps domain errors onto HTTP status codes so every handler
// reports them the same way.
func domainError(w http.ResponseWriter, err error) {
	var ve *renewal.ValidationError
	var te *renewal.TransitionError
	switch {
	case errors.As(err, &ve), errors.Is(err, patient.ErrInvalidPhone):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, patient.ErrNotFound),
		errors.Is(err, renewal.ErrCycleNotFound),
		errors.Is(err, renewal.ErrOccurrenceNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &te),
		errors.Is(err, renewal.ErrDuplicateCycle),
		errors.Is(err, service.ErrNoConsent):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
