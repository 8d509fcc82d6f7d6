package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
)

// PatientRepository persists patients.
type PatientRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPatientRepository creates a new repository.
func NewPatientRepository(pool *pgxpool.Pool, logger *zap.Logger) *PatientRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientRepository{pool: pool, logger: logger}
}

const patientColumns = `id, last_name, first_name, phone, consent, active, notes, recruited_at`

func scanPatient(row pgx.Row) (patient.Patient, error) {
	var p patient.Patient
	err := row.Scan(&p.ID, &p.LastName, &p.FirstName, &p.Phone, &p.Consent,
		&p.Active, &p.Notes, &p.RecruitedAt)
	return p, err
}

// Insert writes a new patient row.
func (r *PatientRepository) Insert(ctx context.Context, p *patient.Patient) error {
	query := `
		INSERT INTO patients (id, last_name, first_name, phone, consent, active, notes, recruited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.LastName, p.FirstName, p.Phone, p.Consent, p.Active, p.Notes, p.RecruitedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// Update persists identity, consent and lifecycle fields.
func (r *PatientRepository) Update(ctx context.Context, p *patient.Patient) error {
	query := `
		UPDATE patients
		SET last_name = $1, first_name = $2, phone = $3, consent = $4, active = $5, notes = $6
		WHERE id = $7
	`
	tag, err := r.pool.Exec(ctx, query,
		p.LastName, p.FirstName, p.Phone, p.Consent, p.Active, p.Notes, p.ID)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrNotFound
	}
	return nil
}

// Get retrieves a patient by ID.
func (r *PatientRepository) Get(ctx context.Context, id string) (*patient.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	p, err := scanPatient(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, patient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// FindActiveByPhone returns the active patient holding the canonical phone, or
// patient.ErrNotFound. Canonical phones are expected unique among active
// patients; duplicates are surfaced as warnings, not constraint failures.
func (r *PatientRepository) FindActiveByPhone(ctx context.Context, phone string) (*patient.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE phone = $1 AND active ORDER BY recruited_at ASC LIMIT 1`
	p, err := scanPatient(r.pool.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, patient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by phone: %w", err)
	}
	return &p, nil
}

// FindActiveByName matches an active patient whose last and first name contain
// the given parts, case-insensitively. Used by the calendar importer, which
// only knows the event subject.
func (r *PatientRepository) FindActiveByName(ctx context.Context, lastName, firstName string) (*patient.Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE active AND last_name ILIKE '%' || $1 || '%' AND first_name ILIKE '%' || $2 || '%'
		ORDER BY recruited_at ASC
		LIMIT 1
	`
	p, err := scanPatient(r.pool.QueryRow(ctx, query, lastName, firstName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, patient.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	return &p, nil
}

// Search returns active patients matching the term against name or phone,
// newest recruits first.
func (r *PatientRepository) Search(ctx context.Context, term string, limit int) ([]patient.Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE active
		  AND ($1 = '' OR last_name ILIKE '%' || $1 || '%'
		       OR first_name ILIKE '%' || $1 || '%'
		       OR phone LIKE '%' || $1 || '%')
		ORDER BY recruited_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []patient.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// ListActive returns all active patients.
func (r *PatientRepository) ListActive(ctx context.Context) ([]patient.Patient, error) {
	return r.Search(ctx, "", 100000)
}

// SetActive flips the soft-delete flag.
func (r *PatientRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE patients SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrNotFound
	}
	return nil
}

// DeleteCascade removes the patient and everything they own: occurrences,
// notification log entries, cycles, then the patient row, in one transaction.
func (r *PatientRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cycleFilter := `cycle_id IN (SELECT id FROM prescription_cycles WHERE patient_id = $1)`
	if _, err := tx.Exec(ctx, `DELETE FROM notification_log WHERE `+cycleFilter, id); err != nil {
		return fmt.Errorf("delete notification log: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM renewal_occurrences WHERE `+cycleFilter, id); err != nil {
		return fmt.Errorf("delete occurrences: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prescription_cycles WHERE patient_id = $1`, id); err != nil {
		return fmt.Errorf("delete cycles: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("patient deleted", zap.String("patient_id", id))
	return nil
}
