package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
	"github.com/stlaurent/renewal-engine/internal/infrastructure/postgres"
)

// ErrNoConsent is returned when a notification is requested for a patient who
// has not consented to being contacted.
var ErrNoConsent = errors.New("patient has not consented to notifications")

// Transition moves an occurrence to the requested status and persists it.
// Cycle status is never written here; completion is derived at read time.
func (s *Service) Transition(ctx context.Context, occurrenceID string, next renewal.OccurrenceStatus) (*renewal.Occurrence, error) {
	ctx, span := s.tracer.Start(ctx, "transition_occurrence",
		trace.WithAttributes(
			attribute.String("occurrence_id", occurrenceID),
			attribute.String("to", string(next)),
		))
	defer span.End()

	occ, err := s.cycles.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if err := occ.Transition(next, time.Now()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.cycles.UpdateOccurrence(ctx, occ); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OccurrenceTransitions.WithLabelValues(string(next)).Inc()
	}
	s.logger.Info("occurrence transitioned",
		zap.String("occurrence_id", occurrenceID),
		zap.String("to", string(next)))
	return occ, nil
}

// Reschedule moves a pending occurrence to a new calendar day. The date is
// taken as the operator chose it; no working-day adjustment is applied to an
// explicit edit. Terminal occurrences cannot be moved.
func (s *Service) Reschedule(ctx context.Context, occurrenceID string, date time.Time) (*renewal.Occurrence, error) {
	occ, err := s.cycles.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.Status.Terminal() {
		return nil, &renewal.ValidationError{Field: "date", Reason: "occurrence is terminal"}
	}
	occ.Date = renewal.Day(date)
	if err := s.cycles.UpdateOccurrence(ctx, occ); err != nil {
		return nil, err
	}
	s.logger.Info("occurrence rescheduled",
		zap.String("occurrence_id", occurrenceID),
		zap.Time("date", occ.Date))
	return occ, nil
}

// RequestNotification queues an SMS request for a READY occurrence. The
// request is written to the outbox; the relay publishes it to the bus and an
// external sender performs the actual send, reporting back via
// ConfirmNotified. The occurrence stays READY until that confirmation.
func (s *Service) RequestNotification(ctx context.Context, occurrenceID, requestedBy string) error {
	ctx, span := s.tracer.Start(ctx, "request_notification",
		trace.WithAttributes(attribute.String("occurrence_id", occurrenceID)))
	defer span.End()

	if s.notifications == nil {
		return fmt.Errorf("notification path not configured")
	}

	occ, err := s.cycles.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return err
	}
	if occ.Status != renewal.StatusReady {
		return &renewal.TransitionError{From: occ.Status, To: renewal.StatusNotified}
	}

	cycle, err := s.cycles.GetCycle(ctx, occ.CycleID)
	if err != nil {
		return err
	}
	p, err := s.patients.Get(ctx, cycle.PatientID)
	if err != nil {
		return err
	}
	if !p.Consent {
		span.SetAttributes(attribute.Bool("no_consent", true))
		return ErrNoConsent
	}

	req := &postgres.NotificationRequest{
		OccurrenceID: occ.ID,
		CycleID:      cycle.ID,
		PatientID:    p.ID,
		Phone:        p.Phone,
		Message: fmt.Sprintf(
			"Bonjour %s, votre renouvellement d'ordonnance est pret. Vous pouvez passer le retirer a la pharmacie.",
			p.FirstName),
		RequestedBy: requestedBy,
	}
	if err := s.notifications.Enqueue(ctx, req, s.config.NotifyTopic); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.NotificationsEnqueued.Inc()
	}
	return nil
}

// ConfirmNotified records the outcome reported by the external sender. On
// success the occurrence moves READY to NOTIFIED; on failure it stays READY
// so the operator can retry, and only the log row records the error.
func (s *Service) ConfirmNotified(ctx context.Context, occurrenceID string, success bool, apiID, sendErr string) error {
	if s.notifications == nil {
		return fmt.Errorf("notification path not configured")
	}

	if err := s.notifications.RecordResult(ctx, occurrenceID, success, apiID, sendErr); err != nil {
		return err
	}
	if !success {
		s.logger.Warn("notification send failed",
			zap.String("occurrence_id", occurrenceID),
			zap.String("error", sendErr))
		return nil
	}

	_, err := s.Transition(ctx, occurrenceID, renewal.StatusNotified)
	return err
}

// PlanningForDay returns the occurrences due on a calendar day, joined with
// patient contact data, optionally narrowed to one status.
func (s *Service) PlanningForDay(ctx context.Context, day time.Time, status renewal.OccurrenceStatus) ([]postgres.DayOccurrence, error) {
	if status != "" && !renewal.ValidOccurrenceStatus(status) {
		return nil, &renewal.ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}
	return s.cycles.ListOccurrencesForDay(ctx, day, status)
}

// KPIReport tallies non-cancelled occurrences over a date range.
type KPIReport struct {
	From     time.Time
	To       time.Time
	Total    int64
	ByStatus map[renewal.OccurrenceStatus]int64
}

// KPI computes the occurrence tallies shown on the dashboard.
func (s *Service) KPI(ctx context.Context, from, to time.Time) (*KPIReport, error) {
	if to.Before(from) {
		return nil, &renewal.ValidationError{Field: "to", Reason: "range end before start"}
	}
	counts, err := s.cycles.CountByStatus(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &KPIReport{From: renewal.Day(from), To: renewal.Day(to), ByStatus: counts}
	for _, n := range counts {
		report.Total += n
	}
	return report, nil
}
