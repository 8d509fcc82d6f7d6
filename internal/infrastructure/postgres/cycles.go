// Package postgres provides PostgreSQL persistence for the renewal engine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
)

// CancelStats reports how many rows a cancel pass touched.
type CancelStats struct {
	Cycles      int64
	Occurrences int64
}

// DayOccurrence is an occurrence joined with its owning cycle and patient,
// as shown on the daily preparation planning.
type DayOccurrence struct {
	Occurrence  renewal.Occurrence
	CycleID     string
	PatientID   string
	PatientName string
	Phone       string
	Consent     bool
}

// CycleRepository persists cycles and their occurrences.
type CycleRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewCycleRepository creates a new repository.
func NewCycleRepository(pool *pgxpool.Pool, logger *zap.Logger) *CycleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleRepository{pool: pool, logger: logger, tracer: otel.Tracer("cycle-repository")}
}

// InsertCycleWithOccurrences writes the cycle and all its occurrences in one
// transaction. The cycle insert is conditional on the unique index over
// (patient_id, first_delivery): when another cycle already holds that day for
// the patient, nothing is written and renewal.ErrDuplicateCycle is returned.
// Either the cycle and every occurrence commit together, or none do.
func (r *CycleRepository) InsertCycleWithOccurrences(ctx context.Context, cycle *renewal.Cycle, occurrences []renewal.Occurrence) error {
	ctx, span := r.tracer.Start(ctx, "insert_cycle",
		trace.WithAttributes(
			attribute.String("patient_id", cycle.PatientID),
			attribute.Int("occurrences", len(occurrences)),
		))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertCycle := `
		INSERT INTO prescription_cycles
		(id, patient_id, first_delivery, renewal_count, interval_days, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (patient_id, first_delivery) DO NOTHING
		RETURNING id
	`
	var inserted string
	err = tx.QueryRow(ctx, insertCycle,
		cycle.ID, cycle.PatientID, cycle.FirstDelivery, cycle.RenewalCount,
		cycle.IntervalDays, cycle.Status, cycle.CreatedBy, cycle.CreatedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetAttributes(attribute.Bool("duplicate", true))
		return renewal.ErrDuplicateCycle
	}
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	batch := &pgx.Batch{}
	insertOcc := `
		INSERT INTO renewal_occurrences
		(id, cycle_id, idx, theoretical_date, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, occ := range occurrences {
		batch.Queue(insertOcc, occ.ID, occ.CycleID, occ.Index, occ.Date, occ.Status)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert occurrences: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const cycleColumns = `id, patient_id, first_delivery, renewal_count, interval_days, status, created_by, created_at`

func scanCycle(row pgx.Row) (renewal.Cycle, error) {
	var c renewal.Cycle
	err := row.Scan(&c.ID, &c.PatientID, &c.FirstDelivery, &c.RenewalCount,
		&c.IntervalDays, &c.Status, &c.CreatedBy, &c.CreatedAt)
	return c, err
}

// GetCycle retrieves a cycle by ID.
func (r *CycleRepository) GetCycle(ctx context.Context, id string) (*renewal.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM prescription_cycles WHERE id = $1`
	c, err := scanCycle(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, renewal.ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cycle: %w", err)
	}
	return &c, nil
}

// FindCyclesByPatient returns every cycle owned by the patient, oldest first.
func (r *CycleRepository) FindCyclesByPatient(ctx context.Context, patientID string) ([]renewal.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM prescription_cycles WHERE patient_id = $1 ORDER BY first_delivery ASC`
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("find cycles: %w", err)
	}
	defer rows.Close()

	var cycles []renewal.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

const occurrenceColumns = `id, cycle_id, idx, theoretical_date, status, prepared_at, notified_at, completed_at`

func scanOccurrence(row pgx.Row) (renewal.Occurrence, error) {
	var o renewal.Occurrence
	err := row.Scan(&o.ID, &o.CycleID, &o.Index, &o.Date, &o.Status,
		&o.PreparedAt, &o.NotifiedAt, &o.CompletedAt)
	return o, err
}

// GetOccurrence retrieves a single occurrence by ID.
func (r *CycleRepository) GetOccurrence(ctx context.Context, id string) (*renewal.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM renewal_occurrences WHERE id = $1`
	o, err := scanOccurrence(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, renewal.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	return &o, nil
}

// ListOccurrences returns a cycle's occurrences in index order.
func (r *CycleRepository) ListOccurrences(ctx context.Context, cycleID string) ([]renewal.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM renewal_occurrences WHERE cycle_id = $1 ORDER BY idx ASC`
	rows, err := r.pool.Query(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var occurrences []renewal.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, o)
	}
	return occurrences, rows.Err()
}

// FindSchedules loads every cycle of a patient together with its occurrences.
func (r *CycleRepository) FindSchedules(ctx context.Context, patientID string) ([]renewal.CycleSchedule, error) {
	cycles, err := r.FindCyclesByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	schedules := make([]renewal.CycleSchedule, 0, len(cycles))
	for _, c := range cycles {
		occurrences, err := r.ListOccurrences(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, renewal.CycleSchedule{Cycle: c, Occurrences: occurrences})
	}
	return schedules, nil
}

// UpdateOccurrence persists status, date and lifecycle timestamps.
func (r *CycleRepository) UpdateOccurrence(ctx context.Context, occ *renewal.Occurrence) error {
	query := `
		UPDATE renewal_occurrences
		SET status = $1, theoretical_date = $2, prepared_at = $3, notified_at = $4, completed_at = $5
		WHERE id = $6
	`
	tag, err := r.pool.Exec(ctx, query,
		occ.Status, occ.Date, occ.PreparedAt, occ.NotifiedAt, occ.CompletedAt, occ.ID)
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renewal.ErrOccurrenceNotFound
	}
	return nil
}

// UpdateCycleStatus sets a cycle's status.
func (r *CycleRepository) UpdateCycleStatus(ctx context.Context, id string, status renewal.CycleStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE prescription_cycles SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update cycle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renewal.ErrCycleNotFound
	}
	return nil
}

// CancelActiveCyclesForPatient cancels every ACTIVE cycle owned by the patient
// and every owned occurrence that is not yet DONE or CANCELLED, in one
// transaction. Re-running on an already-cancelled patient touches zero rows
// and succeeds.
func (r *CycleRepository) CancelActiveCyclesForPatient(ctx context.Context, patientID string) (CancelStats, error) {
	ctx, span := r.tracer.Start(ctx, "cancel_active_cycles",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	var stats CancelStats
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cancelOccurrences := `
		UPDATE renewal_occurrences
		SET status = $1
		WHERE status NOT IN ($2, $3)
		  AND cycle_id IN (
			SELECT id FROM prescription_cycles WHERE patient_id = $4 AND status = $5
		  )
	`
	occTag, err := tx.Exec(ctx, cancelOccurrences,
		renewal.StatusCancelled, renewal.StatusDone, renewal.StatusCancelled,
		patientID, renewal.CycleActive)
	if err != nil {
		return stats, fmt.Errorf("cancel occurrences: %w", err)
	}

	cancelCycles := `
		UPDATE prescription_cycles
		SET status = $1
		WHERE patient_id = $2 AND status = $3
	`
	cycleTag, err := tx.Exec(ctx, cancelCycles, renewal.CycleCancelled, patientID, renewal.CycleActive)
	if err != nil {
		return stats, fmt.Errorf("cancel cycles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}

	stats.Cycles = cycleTag.RowsAffected()
	stats.Occurrences = occTag.RowsAffected()
	span.SetAttributes(
		attribute.Int64("cycles_cancelled", stats.Cycles),
		attribute.Int64("occurrences_cancelled", stats.Occurrences),
	)
	return stats, nil
}

// DeleteCycleCascade irreversibly removes a cycle, its occurrences and its
// notification log entries. Restricted to elevated-privilege callers at the
// API layer.
func (r *CycleRepository) DeleteCycleCascade(ctx context.Context, cycleID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM notification_log WHERE cycle_id = $1`, cycleID); err != nil {
		return fmt.Errorf("delete notification log: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM renewal_occurrences WHERE cycle_id = $1`, cycleID); err != nil {
		return fmt.Errorf("delete occurrences: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM prescription_cycles WHERE id = $1`, cycleID)
	if err != nil {
		return fmt.Errorf("delete cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return renewal.ErrCycleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("cycle deleted", zap.String("cycle_id", cycleID))
	return nil
}

// ListOccurrencesForDay returns occurrences due on the given calendar day,
// joined with patient contact data, cancelled ones excluded. A status filter
// narrows further when non-empty.
func (r *CycleRepository) ListOccurrencesForDay(ctx context.Context, day time.Time, status renewal.OccurrenceStatus) ([]DayOccurrence, error) {
	query := `
		SELECT o.id, o.cycle_id, o.idx, o.theoretical_date, o.status,
		       o.prepared_at, o.notified_at, o.completed_at,
		       c.id, p.id, p.first_name || ' ' || p.last_name, p.phone, p.consent
		FROM renewal_occurrences o
		JOIN prescription_cycles c ON c.id = o.cycle_id
		JOIN patients p ON p.id = c.patient_id
		WHERE o.theoretical_date = $1
		  AND o.status <> $2
		  AND ($3 = '' OR o.status = $3)
		ORDER BY o.status ASC, o.theoretical_date ASC
	`
	rows, err := r.pool.Query(ctx, query, renewal.Day(day), renewal.StatusCancelled, string(status))
	if err != nil {
		return nil, fmt.Errorf("list day occurrences: %w", err)
	}
	defer rows.Close()

	var result []DayOccurrence
	for rows.Next() {
		var d DayOccurrence
		o := &d.Occurrence
		err := rows.Scan(&o.ID, &o.CycleID, &o.Index, &o.Date, &o.Status,
			&o.PreparedAt, &o.NotifiedAt, &o.CompletedAt,
			&d.CycleID, &d.PatientID, &d.PatientName, &d.Phone, &d.Consent)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// CountByStatus tallies non-cancelled occurrences per status for a date range,
// both bounds inclusive.
func (r *CycleRepository) CountByStatus(ctx context.Context, from, to time.Time) (map[renewal.OccurrenceStatus]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM renewal_occurrences
		WHERE theoretical_date >= $1 AND theoretical_date <= $2
		  AND status <> $3
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query, renewal.Day(from), renewal.Day(to), renewal.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[renewal.OccurrenceStatus]int64)
	for rows.Next() {
		var status renewal.OccurrenceStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
