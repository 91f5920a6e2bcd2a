package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/sentinel"
)

type employeeRecord struct {
	identity   models.Identity
	normalized string
	template   models.Template
	updatedAt  time.Time
}

// InMemoryStore is a process-local template store for tests and single-node demos.
type InMemoryStore struct {
	mu        sync.RWMutex
	employees map[id.EmployeeID]*employeeRecord
	order     []id.EmployeeID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{employees: make(map[id.EmployeeID]*employeeRecord)}
}

// AddEmployee seeds an employee. Employee CRUD lives outside this module.
func (s *InMemoryStore) AddEmployee(identity models.Identity, template models.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.employees[identity.ID]; !exists {
		s.order = append(s.order, identity.ID)
	}
	identity.Enrolled = template != nil
	s.employees[identity.ID] = &employeeRecord{
		identity:   identity,
		normalized: id.NormalizeIdentifier(identity.NationalID),
		template:   slices.Clone(template),
	}
}

// SetActive flips an employee's status.
func (s *InMemoryStore) SetActive(employeeID id.EmployeeID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.employees[employeeID]; ok {
		rec.identity.Active = active
	}
}

func (s *InMemoryStore) ListEnrolled(_ context.Context) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []models.Entry
	for _, employeeID := range s.order {
		rec := s.employees[employeeID]
		if rec.template == nil {
			continue
		}
		entries = append(entries, models.EntryFrom(&rec.identity, slices.Clone(rec.template)))
	}
	return entries, nil
}

func (s *InMemoryStore) GetEmployee(_ context.Context, employeeID id.EmployeeID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.employees[employeeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	identity := rec.identity
	return &identity, nil
}

func (s *InMemoryStore) FindByNationalID(_ context.Context, normalized string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, employeeID := range s.order {
		rec := s.employees[employeeID]
		if rec.normalized == normalized {
			identity := rec.identity
			return &identity, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveTemplate(_ context.Context, employeeID id.EmployeeID, template models.Template, at time.Time) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.employees[employeeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.template = slices.Clone(template)
	rec.updatedAt = at
	rec.identity.Enrolled = true
	identity := rec.identity
	return &identity, nil
}

func (s *InMemoryStore) ClearTemplate(_ context.Context, employeeID id.EmployeeID) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.employees[employeeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.template = nil
	rec.identity.Enrolled = false
	identity := rec.identity
	return &identity, nil
}
