package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"punchclock/internal/punch/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/sentinel"
)

type dayKey struct {
	employeeID id.EmployeeID
	date       string
}

// InMemoryStore enforces the same one-per-type-per-day rule as the database.
type InMemoryStore struct {
	mu      sync.RWMutex
	punches map[dayKey][]models.Punch
	err     error
	inserts int
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{punches: make(map[dayKey][]models.Punch)}
}

func keyOf(employeeID id.EmployeeID, date time.Time) dayKey {
	return dayKey{employeeID: employeeID, date: date.Format(time.DateOnly)}
}

func (s *InMemoryStore) Insert(_ context.Context, p models.Punch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	key := keyOf(p.EmployeeID, p.Date)
	for _, existing := range s.punches[key] {
		if existing.Type == p.Type {
			return fmt.Errorf("insert punch: punches_one_per_type: %w", sentinel.ErrConflict)
		}
	}
	s.punches[key] = append(s.punches[key], p)
	s.inserts++
	return nil
}

func (s *InMemoryStore) ListDay(_ context.Context, employeeID id.EmployeeID, date time.Time) ([]models.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := slices.Clone(s.punches[keyOf(employeeID, date)])
	slices.SortStableFunc(out, func(a, b models.Punch) int {
		return a.At.Compare(b.At)
	})
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, employeeID id.EmployeeID, date time.Time, t models.Type) (*models.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.punches[keyOf(employeeID, date)] {
		if p.Type == t {
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FailWith makes every call return err until cleared with nil.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Inserts counts successful writes.
func (s *InMemoryStore) Inserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inserts
}
