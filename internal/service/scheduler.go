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
)

// CreateCycleRequest is the input for cycle creation.
type CreateCycleRequest struct {
	PatientID     string
	FirstDelivery time.Time
	RenewalCount  int
	IntervalDays  int
	CreatedBy     string
}

// CreateCycleResult reports what cycle creation did. Skipped is set when the
// duplicate guard rejected the insert; callers surface that as a skipped item,
// not an error.
type CreateCycleResult struct {
	Cycle       *renewal.Cycle
	Occurrences []renewal.Occurrence
	Skipped     bool
}

// CreateCycle generates and persists a full renewal schedule for a patient.
// An inactive patient is reactivated: a new prescription means they are back.
func (s *Service) CreateCycle(ctx context.Context, req CreateCycleRequest) (*CreateCycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "create_cycle",
		trace.WithAttributes(
			attribute.String("patient_id", req.PatientID),
			attribute.Int("renewal_count", req.RenewalCount),
		))
	defer span.End()

	return s.create(ctx, req, nil)
}

// QuickAdd creates a single-occurrence cycle for an ad-hoc renewal. Unlike a
// regular cycle, the sole occurrence starts at TO_PREPARE: the delivery has
// not happened yet, the operator is queueing work for the chosen day.
func (s *Service) QuickAdd(ctx context.Context, patientID string, date time.Time, createdBy string) (*CreateCycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "quick_add",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	status := renewal.StatusToPrepare
	return s.create(ctx, CreateCycleRequest{
		PatientID:     patientID,
		FirstDelivery: date,
		RenewalCount:  0,
		CreatedBy:     createdBy,
	}, &status)
}

// create generates the schedule and persists it atomically. A non-nil status
// override replaces every generated occurrence's starting status.
func (s *Service) create(ctx context.Context, req CreateCycleRequest, override *renewal.OccurrenceStatus) (*CreateCycleResult, error) {
	p, err := s.patients.Get(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		if err := s.patients.SetActive(ctx, p.ID, true); err != nil {
			return nil, fmt.Errorf("reactivate patient: %w", err)
		}
		s.logger.Info("patient reactivated on new cycle", zap.String("patient_id", p.ID))
	}

	cycle, occurrences, err := s.generator.Generate(renewal.Spec{
		PatientID:     req.PatientID,
		FirstDelivery: req.FirstDelivery,
		RenewalCount:  req.RenewalCount,
		IntervalDays:  req.IntervalDays,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if override != nil {
		for i := range occurrences {
			occurrences[i].Status = *override
		}
	}

	if err := s.cycles.InsertCycleWithOccurrences(ctx, cycle, occurrences); err != nil {
		if errors.Is(err, renewal.ErrDuplicateCycle) {
			if s.metrics != nil {
				s.metrics.CyclesSkippedDuplicate.Inc()
			}
			s.logger.Info("cycle skipped, duplicate first delivery",
				zap.String("patient_id", req.PatientID),
				zap.Time("first_delivery", cycle.FirstDelivery))
			return &CreateCycleResult{Skipped: true}, nil
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CyclesCreated.Inc()
		s.metrics.OccurrencesGenerated.Add(float64(len(occurrences)))
	}
	s.logger.Info("cycle created",
		zap.String("cycle_id", cycle.ID),
		zap.String("patient_id", req.PatientID),
		zap.Int("occurrences", len(occurrences)))

	return &CreateCycleResult{Cycle: cycle, Occurrences: occurrences}, nil
}

// GetSchedule loads a cycle with its occurrences in index order.
func (s *Service) GetSchedule(ctx context.Context, cycleID string) (*renewal.CycleSchedule, error) {
	cycle, err := s.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.cycles.ListOccurrences(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return &renewal.CycleSchedule{Cycle: *cycle, Occurrences: occurrences}, nil
}

// SchedulesForPatient loads every cycle of a patient with occurrences.
func (s *Service) SchedulesForPatient(ctx context.Context, patientID string) ([]renewal.CycleSchedule, error) {
	return s.cycles.FindSchedules(ctx, patientID)
}

// CheckDuplicate is the advisory pre-check exposed to the UI so operators see
// collisions before submitting. The insert itself remains the authority.
func (s *Service) CheckDuplicate(ctx context.Context, patientID string, firstDelivery time.Time) (renewal.CollisionResult, error) {
	existing, err := s.cycles.FindCyclesByPatient(ctx, patientID)
	if err != nil {
		return renewal.CollisionResult{}, err
	}
	return renewal.CheckDuplicate(patientID, firstDelivery, existing), nil
}
