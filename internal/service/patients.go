package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
)

// RegisterPatientRequest is the input for patient registration.
type RegisterPatientRequest struct {
	LastName  string
	FirstName string
	Phone     string
	Consent   bool
	Notes     string
}

// RegisterPatient normalizes the phone and creates the patient. An active
// patient already holding the same canonical phone is logged as a warning but
// does not block registration: family members share numbers.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*patient.Patient, error) {
	if req.LastName == "" || req.FirstName == "" {
		return nil, &renewal.ValidationError{Field: "name", Reason: "last and first name required"}
	}
	phone, err := patient.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	if existing, err := s.patients.FindActiveByPhone(ctx, phone); err == nil {
		s.logger.Warn("phone already in use by another active patient",
			zap.String("phone", phone),
			zap.String("existing_patient_id", existing.ID))
	} else if !errors.Is(err, patient.ErrNotFound) {
		return nil, err
	}

	p := &patient.Patient{
		ID:          uuid.New().String(),
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		Phone:       phone,
		Consent:     req.Consent,
		Active:      true,
		Notes:       req.Notes,
		RecruitedAt: time.Now().UTC(),
	}
	if err := s.patients.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("patient registered", zap.String("patient_id", p.ID))
	return p, nil
}

// UpdatePatient applies identity and consent edits. The phone is normalized
// again so edits cannot bypass canonicalization.
func (s *Service) UpdatePatient(ctx context.Context, id string, req RegisterPatientRequest) (*patient.Patient, error) {
	p, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.LastName != "" {
		p.LastName = req.LastName
	}
	if req.FirstName != "" {
		p.FirstName = req.FirstName
	}
	if req.Phone != "" {
		phone, err := patient.NormalizePhone(req.Phone)
		if err != nil {
			return nil, err
		}
		p.Phone = phone
	}
	p.Consent = req.Consent
	p.Notes = req.Notes

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPatient retrieves a patient by ID.
func (s *Service) GetPatient(ctx context.Context, id string) (*patient.Patient, error) {
	return s.patients.Get(ctx, id)
}

// FindPatientByName matches an active patient by last and first name parts.
// Used by import pipelines that only know the calendar event subject.
func (s *Service) FindPatientByName(ctx context.Context, lastName, firstName string) (*patient.Patient, error) {
	return s.patients.FindActiveByName(ctx, lastName, firstName)
}

// SearchPatients returns active patients matching the term.
func (s *Service) SearchPatients(ctx context.Context, term string, limit int) ([]patient.Patient, error) {
	return s.patients.Search(ctx, term, limit)
}

// DeactivatePatient soft-deletes a patient, keeping their history.
func (s *Service) DeactivatePatient(ctx context.Context, id string) error {
	return s.patients.SetActive(ctx, id, false)
}

// ReactivatePatient reverses a soft delete.
func (s *Service) ReactivatePatient(ctx context.Context, id string) error {
	return s.patients.SetActive(ctx, id, true)
}
