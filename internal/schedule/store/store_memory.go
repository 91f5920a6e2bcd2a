package store

import (
	"context"
	"sync"

	"punchclock/internal/schedule/models"
	id "punchclock/pkg/domain"
)

type assignment struct {
	scheduleID *id.ScheduleID
	primary    bool
}

type assignmentKey struct {
	employeeID   id.EmployeeID
	departmentID id.DepartmentID
}

// InMemoryStore mirrors the Postgres lookups over maps. Used by tests and local runs.
type InMemoryStore struct {
	mu                  sync.RWMutex
	schedules           map[id.ScheduleID]models.Schedule
	departmentSchedules map[id.DepartmentID]id.ScheduleID
	employeeSchedules   map[id.EmployeeID]id.ScheduleID
	assignments         map[assignmentKey]assignment
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		schedules:           make(map[id.ScheduleID]models.Schedule),
		departmentSchedules: make(map[id.DepartmentID]id.ScheduleID),
		employeeSchedules:   make(map[id.EmployeeID]id.ScheduleID),
		assignments:         make(map[assignmentKey]assignment),
	}
}

func (s *InMemoryStore) PutSchedule(sched models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
}

func (s *InMemoryStore) SetDepartmentSchedule(departmentID id.DepartmentID, scheduleID id.ScheduleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departmentSchedules[departmentID] = scheduleID
}

func (s *InMemoryStore) SetEmployeeSchedule(employeeID id.EmployeeID, scheduleID id.ScheduleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employeeSchedules[employeeID] = scheduleID
}

// Assign links an employee to a department. scheduleID overrides the department's schedule when non-nil.
// Marking an assignment primary clears any previous primary flag for the employee.
func (s *InMemoryStore) Assign(employeeID id.EmployeeID, departmentID id.DepartmentID, scheduleID *id.ScheduleID, primary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if primary {
		for key, a := range s.assignments {
			if key.employeeID == employeeID && a.primary {
				a.primary = false
				s.assignments[key] = a
			}
		}
	}
	s.assignments[assignmentKey{employeeID, departmentID}] = assignment{scheduleID: scheduleID, primary: primary}
}

func (s *InMemoryStore) DepartmentSchedule(_ context.Context, employeeID id.EmployeeID, departmentID id.DepartmentID) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentKey{employeeID, departmentID}]
	if !ok {
		return nil, nil
	}
	return s.assignmentSchedule(departmentID, a), nil
}

func (s *InMemoryStore) PrimarySchedule(_ context.Context, employeeID id.EmployeeID) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, a := range s.assignments {
		if key.employeeID == employeeID && a.primary {
			return s.assignmentSchedule(key.departmentID, a), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) EmployeeSchedule(_ context.Context, employeeID id.EmployeeID) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scheduleID, ok := s.employeeSchedules[employeeID]
	if !ok {
		return nil, nil
	}
	return s.lookup(scheduleID), nil
}

func (s *InMemoryStore) assignmentSchedule(departmentID id.DepartmentID, a assignment) *models.Schedule {
	if a.scheduleID != nil {
		return s.lookup(*a.scheduleID)
	}
	scheduleID, ok := s.departmentSchedules[departmentID]
	if !ok {
		return nil
	}
	return s.lookup(scheduleID)
}

func (s *InMemoryStore) lookup(scheduleID id.ScheduleID) *models.Schedule {
	sched, ok := s.schedules[scheduleID]
	if !ok {
		return nil
	}
	return &sched
}
