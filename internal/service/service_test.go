package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/stlaurent/renewal-engine/internal/domain/patient"
	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
	"github.com/stlaurent/renewal-engine/internal/infrastructure/postgres"
)

// stubCycleStore is an in-memory CycleStore for service tests.
type stubCycleStore struct {
	cycles      map[string]*renewal.Cycle
	occurrences map[string]*renewal.Occurrence
}

func newStubCycleStore() *stubCycleStore {
	return &stubCycleStore{
		cycles:      map[string]*renewal.Cycle{},
		occurrences: map[string]*renewal.Occurrence{},
	}
}

func (s *stubCycleStore) InsertCycleWithOccurrences(_ context.Context, cycle *renewal.Cycle, occurrences []renewal.Occurrence) error {
	for _, c := range s.cycles {
		if c.PatientID == cycle.PatientID && renewal.SameDay(c.FirstDelivery, cycle.FirstDelivery) {
			return renewal.ErrDuplicateCycle
		}
	}
	cp := *cycle
	s.cycles[cycle.ID] = &cp
	for i := range occurrences {
		oc := occurrences[i]
		s.occurrences[oc.ID] = &oc
	}
	return nil
}

func (s *stubCycleStore) GetCycle(_ context.Context, id string) (*renewal.Cycle, error) {
	c, ok := s.cycles[id]
	if !ok {
		return nil, renewal.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubCycleStore) FindCyclesByPatient(_ context.Context, patientID string) ([]renewal.Cycle, error) {
	var cycles []renewal.Cycle
	for _, c := range s.cycles {
		if c.PatientID == patientID {
			cycles = append(cycles, *c)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].FirstDelivery.Before(cycles[j].FirstDelivery) })
	return cycles, nil
}

func (s *stubCycleStore) GetOccurrence(_ context.Context, id string) (*renewal.Occurrence, error) {
	o, ok := s.occurrences[id]
	if !ok {
		return nil, renewal.ErrOccurrenceNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubCycleStore) ListOccurrences(_ context.Context, cycleID string) ([]renewal.Occurrence, error) {
	var occurrences []renewal.Occurrence
	for _, o := range s.occurrences {
		if o.CycleID == cycleID {
			occurrences = append(occurrences, *o)
		}
	}
	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Index < occurrences[j].Index })
	return occurrences, nil
}

func (s *stubCycleStore) FindSchedules(ctx context.Context, patientID string) ([]renewal.CycleSchedule, error) {
	cycles, _ := s.FindCyclesByPatient(ctx, patientID)
	schedules := make([]renewal.CycleSchedule, 0, len(cycles))
	for _, c := range cycles {
		occurrences, _ := s.ListOccurrences(ctx, c.ID)
		schedules = append(schedules, renewal.CycleSchedule{Cycle: c, Occurrences: occurrences})
	}
	return schedules, nil
}

func (s *stubCycleStore) UpdateOccurrence(_ context.Context, occ *renewal.Occurrence) error {
	if _, ok := s.occurrences[occ.ID]; !ok {
		return renewal.ErrOccurrenceNotFound
	}
	cp := *occ
	s.occurrences[occ.ID] = &cp
	return nil
}

func (s *stubCycleStore) UpdateCycleStatus(_ context.Context, id string, status renewal.CycleStatus) error {
	c, ok := s.cycles[id]
	if !ok {
		return renewal.ErrCycleNotFound
	}
	c.Status = status
	return nil
}

func (s *stubCycleStore) CancelActiveCyclesForPatient(_ context.Context, patientID string) (postgres.CancelStats, error) {
	var stats postgres.CancelStats
	for _, c := range s.cycles {
		if c.PatientID != patientID || c.Status != renewal.CycleActive {
			continue
		}
		for _, o := range s.occurrences {
			if o.CycleID != c.ID || o.Status == renewal.StatusDone || o.Status == renewal.StatusCancelled {
				continue
			}
			o.Status = renewal.StatusCancelled
			stats.Occurrences++
		}
		c.Status = renewal.CycleCancelled
		stats.Cycles++
	}
	return stats, nil
}

func (s *stubCycleStore) DeleteCycleCascade(_ context.Context, cycleID string) error {
	if _, ok := s.cycles[cycleID]; !ok {
		return renewal.ErrCycleNotFound
	}
	delete(s.cycles, cycleID)
	for id, o := range s.occurrences {
		if o.CycleID == cycleID {
			delete(s.occurrences, id)
		}
	}
	return nil
}

func (s *stubCycleStore) ListOccurrencesForDay(_ context.Context, day time.Time, status renewal.OccurrenceStatus) ([]postgres.DayOccurrence, error) {
	var result []postgres.DayOccurrence
	for _, o := range s.occurrences {
		if !renewal.SameDay(o.Date, day) || o.Status == renewal.StatusCancelled {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		c := s.cycles[o.CycleID]
		result = append(result, postgres.DayOccurrence{
			Occurrence: *o,
			CycleID:    o.CycleID,
			PatientID:  c.PatientID,
		})
	}
	return result, nil
}

func (s *stubCycleStore) CountByStatus(_ context.Context, from, to time.Time) (map[renewal.OccurrenceStatus]int64, error) {
	counts := map[renewal.OccurrenceStatus]int64{}
	for _, o := range s.occurrences {
		if o.Status == renewal.StatusCancelled {
			continue
		}
		if o.Date.Before(renewal.Day(from)) || o.Date.After(renewal.Day(to)) {
			continue
		}
		counts[o.Status]++
	}
	return counts, nil
}

// stubPatientStore is an in-memory PatientStore for service tests.
type stubPatientStore struct {
	patients map[string]*patient.Patient
}

func newStubPatientStore(seed ...patient.Patient) *stubPatientStore {
	s := &stubPatientStore{patients: map[string]*patient.Patient{}}
	for i := range seed {
		p := seed[i]
		s.patients[p.ID] = &p
	}
	return s
}

func (s *stubPatientStore) Insert(_ context.Context, p *patient.Patient) error {
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *stubPatientStore) Update(_ context.Context, p *patient.Patient) error {
	if _, ok := s.patients[p.ID]; !ok {
		return patient.ErrNotFound
	}
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *stubPatientStore) Get(_ context.Context, id string) (*patient.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubPatientStore) FindActiveByPhone(_ context.Context, phone string) (*patient.Patient, error) {
	for _, p := range s.patients {
		if p.Active && p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (s *stubPatientStore) FindActiveByName(_ context.Context, lastName, firstName string) (*patient.Patient, error) {
	for _, p := range s.patients {
		if p.Active &&
			strings.Contains(strings.ToUpper(p.LastName), strings.ToUpper(lastName)) &&
			strings.Contains(strings.ToUpper(p.FirstName), strings.ToUpper(firstName)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (s *stubPatientStore) Search(_ context.Context, term string, _ int) ([]patient.Patient, error) {
	var result []patient.Patient
	for _, p := range s.patients {
		if p.Active && (term == "" || strings.Contains(strings.ToUpper(p.LastName), strings.ToUpper(term))) {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *stubPatientStore) ListActive(ctx context.Context) ([]patient.Patient, error) {
	return s.Search(ctx, "", 0)
}

func (s *stubPatientStore) SetActive(_ context.Context, id string, active bool) error {
	p, ok := s.patients[id]
	if !ok {
		return patient.ErrNotFound
	}
	p.Active = active
	return nil
}

func (s *stubPatientStore) DeleteCascade(_ context.Context, id string) error {
	if _, ok := s.patients[id]; !ok {
		return patient.ErrNotFound
	}
	delete(s.patients, id)
	return nil
}

// stubNotificationStore records enqueued requests and results.
type stubNotificationStore struct {
	enqueued []postgres.NotificationRequest
	results  []struct {
		OccurrenceID string
		Success      bool
	}
}

func (s *stubNotificationStore) Enqueue(_ context.Context, req *postgres.NotificationRequest, _ string) error {
	s.enqueued = append(s.enqueued, *req)
	return nil
}

func (s *stubNotificationStore) RecordResult(_ context.Context, occurrenceID string, success bool, _, _ string) error {
	s.results = append(s.results, struct {
		OccurrenceID string
		Success      bool
	}{occurrenceID, success})
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func activePatient(id string) patient.Patient {
	return patient.Patient{
		ID:          id,
		LastName:    "DUPONT",
		FirstName:   "Marie",
		Phone:       "33612345678",
		Consent:     true,
		Active:      true,
		RecruitedAt: date(2024, 6, 1),
	}
}

func newTestService(cycles *stubCycleStore, patients *stubPatientStore, notifications *stubNotificationStore) *Service {
	var store NotificationStore
	if notifications != nil {
		store = notifications
	}
	return New(cycles, patients, store, renewal.NewGenerator(nil), Config{NotifyTopic: "renewal.notifications"}, nil, nil)
}
