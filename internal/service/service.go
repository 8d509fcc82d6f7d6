// Package service orchestrates the renewal engine's use cases over the
// domain packages and persistence.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
	"github.com/stlaurent/renewal-engine/internal/infrastructure/postgres"
	"github.com/stlaurent/renewal-engine/internal/observability/metrics"
)

// CycleStore is the cycle persistence surface the service needs.
type CycleStore interface {
	InsertCycleWithOccurrences(ctx context.Context, cycle *renewal.Cycle, occurrences []renewal.Occurrence) error
	GetCycle(ctx context.Context, id string) (*renewal.Cycle, error)
	FindCyclesByPatient(ctx context.Context, patientID string) ([]renewal.Cycle, error)
	GetOccurrence(ctx context.Context, id string) (*renewal.Occurrence, error)
	ListOccurrences(ctx context.Context, cycleID string) ([]renewal.Occurrence, error)
	FindSchedules(ctx context.Context, patientID string) ([]renewal.CycleSchedule, error)
	UpdateOccurrence(ctx context.Context, occ *renewal.Occurrence) error
	UpdateCycleStatus(ctx context.Context, id string, status renewal.CycleStatus) error
	CancelActiveCyclesForPatient(ctx context.Context, patientID string) (postgres.CancelStats, error)
	DeleteCycleCascade(ctx context.Context, cycleID string) error
	ListOccurrencesForDay(ctx context.Context, day time.Time, status renewal.OccurrenceStatus) ([]postgres.DayOccurrence, error)
	CountByStatus(ctx context.Context, from, to time.Time) (map[renewal.OccurrenceStatus]int64, error)
}

// PatientStore is the patient persistence surface the service needs.
type PatientStore interface {
	Insert(ctx context.Context, p *patient.Patient) error
	Update(ctx context.Context, p *patient.Patient) error
	Get(ctx context.Context, id string) (*patient.Patient, error)
	FindActiveByPhone(ctx context.Context, phone string) (*patient.Patient, error)
	FindActiveByName(ctx context.Context, lastName, firstName string) (*patient.Patient, error)
	Search(ctx context.Context, term string, limit int) ([]patient.Patient, error)
	ListActive(ctx context.Context) ([]patient.Patient, error)
	SetActive(ctx context.Context, id string, active bool) error
	DeleteCascade(ctx context.Context, id string) error
}

// NotificationStore queues notification requests and records send outcomes.
type NotificationStore interface {
	Enqueue(ctx context.Context, req *postgres.NotificationRequest, topic string) error
	RecordResult(ctx context.Context, occurrenceID string, success bool, apiID, sendErr string) error
}

// Config holds service configuration.
type Config struct {
	// NotifyTopic is the bus topic notification requests are queued for
	NotifyTopic string
}

// Service implements the renewal engine use cases.
type Service struct {
	cycles        CycleStore
	patients      PatientStore
	notifications NotificationStore
	generator     *renewal.Generator
	config        Config
	metrics       *metrics.Metrics
	logger        *zap.Logger
	tracer        trace.Tracer
}

// New creates the service. notifications and m may be nil when the caller
// does not need the notification path or metrics (batch tools, tests).
func New(cycles CycleStore, patients PatientStore, notifications NotificationStore, generator *renewal.Generator, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generator == nil {
		generator = renewal.NewGenerator(nil)
	}
	return &Service{
		cycles:        cycles,
		patients:      patients,
		notifications: notifications,
		generator:     generator,
		config:        cfg,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("renewal-service"),
	}
}
