package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
)

// BulkResult is the per-patient outcome of a bulk operation. One patient
// failing never aborts the rest of the batch.
type BulkResult struct {
	PatientID            string `json:"patient_id"`
	PatientName          string `json:"patient_name"`
	Success              bool   `json:"success"`
	Reason               string `json:"reason,omitempty"`
	CyclesCancelled      int64  `json:"cycles_cancelled"`
	OccurrencesCancelled int64  `json:"occurrences_cancelled"`
}

// CancelActiveRenewals cancels every active cycle of each listed patient.
// Completed and already-cancelled occurrences keep their status; the
// operation is idempotent per patient.
func (s *Service) CancelActiveRenewals(ctx context.Context, patientIDs []string) []BulkResult {
	ctx, span := s.tracer.Start(ctx, "cancel_active_renewals",
		trace.WithAttributes(attribute.Int("patients", len(patientIDs))))
	defer span.End()

	results := make([]BulkResult, 0, len(patientIDs))
	for _, id := range patientIDs {
		result := BulkResult{PatientID: id}

		p, err := s.patients.Get(ctx, id)
		if err != nil {
			result.Reason = err.Error()
			results = append(results, result)
			continue
		}
		result.PatientName = p.FullName()

		stats, err := s.cycles.CancelActiveCyclesForPatient(ctx, id)
		if err != nil {
			result.Reason = err.Error()
			results = append(results, result)
			continue
		}

		result.Success = true
		result.CyclesCancelled = stats.Cycles
		result.OccurrencesCancelled = stats.Occurrences
		if s.metrics != nil {
			s.metrics.CyclesCancelled.Add(float64(stats.Cycles))
		}
		results = append(results, result)
	}

	s.logger.Info("bulk cancel finished", zap.Int("patients", len(patientIDs)))
	return results
}

// CompletedPatient is a patient whose every cycle has run to completion.
type CompletedPatient struct {
	Patient    patient.Patient
	CycleCount int
}

// DetectFullyCompletedPatients scans active patients and returns those whose
// schedules are fully done. Qualification is derived on each call; nothing is
// written, so a patient drops out of the list as soon as a new cycle starts.
func (s *Service) DetectFullyCompletedPatients(ctx context.Context) ([]CompletedPatient, error) {
	ctx, span := s.tracer.Start(ctx, "detect_fully_completed")
	defer span.End()

	active, err := s.patients.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var completed []CompletedPatient
	for _, p := range active {
		schedules, err := s.cycles.FindSchedules(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if renewal.FullyCompleted(schedules) {
			completed = append(completed, CompletedPatient{Patient: p, CycleCount: len(schedules)})
		}
	}

	span.SetAttributes(attribute.Int("completed", len(completed)))
	return completed, nil
}

// DeleteCycle irreversibly removes a cycle with its occurrences and
// notification history.
func (s *Service) DeleteCycle(ctx context.Context, cycleID string) error {
	return s.cycles.DeleteCycleCascade(ctx, cycleID)
}

// DeletePatient irreversibly removes a patient and everything they own.
func (s *Service) DeletePatient(ctx context.Context, patientID string) error {
	return s.patients.DeleteCascade(ctx, patientID)
}

// AnonymizePatient cancels the patient's active cycles and overwrites their
// identity in place. Cycles and occurrence history are kept for statistics,
// detached from any identifying data.
func (s *Service) AnonymizePatient(ctx context.Context, patientID string) error {
	ctx, span := s.tracer.Start(ctx, "anonymize_patient",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return err
	}

	if _, err := s.cycles.CancelActiveCyclesForPatient(ctx, patientID); err != nil {
		return err
	}

	p.Anonymize()
	if err := s.patients.Update(ctx, p); err != nil {
		return err
	}

	s.logger.Info("patient anonymized", zap.String("patient_id", patientID))
	return nil
}
