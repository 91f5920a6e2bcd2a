package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"punchclock/internal/schedule/models"
	"punchclock/internal/schedule/store"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
)

// countingStore records which lookups ran so short-circuiting can be asserted.
type countingStore struct {
	Store
	calls []string
	err   error
}

func (c *countingStore) DepartmentSchedule(ctx context.Context, e id.EmployeeID, d id.DepartmentID) (*models.Schedule, error) {
	c.calls = append(c.calls, "department")
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.DepartmentSchedule(ctx, e, d)
}

func (c *countingStore) PrimarySchedule(ctx context.Context, e id.EmployeeID) (*models.Schedule, error) {
	c.calls = append(c.calls, "primary")
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.PrimarySchedule(ctx, e)
}

func (c *countingStore) EmployeeSchedule(ctx context.Context, e id.EmployeeID) (*models.Schedule, error) {
	c.calls = append(c.calls, "employee")
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.EmployeeSchedule(ctx, e)
}

type ResolverSuite struct {
	suite.Suite
	mem      *store.InMemoryStore
	counting *countingStore
	resolver *Resolver

	employee   id.EmployeeID
	deptA      id.DepartmentID
	deptB      id.DepartmentID
	morning    models.Schedule
	afternoon  models.Schedule
	legacy     models.Schedule
	assignment models.Schedule
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func newSchedule(name, start, end string) models.Schedule {
	return models.Schedule{
		ID:    id.ScheduleID(uuid.New()),
		Name:  name,
		Start: models.MustClock(start),
		End:   models.MustClock(end),
	}
}

func (s *ResolverSuite) SetupTest() {
	s.mem = store.NewInMemory()
	s.counting = &countingStore{Store: s.mem}
	s.employee = id.EmployeeID(uuid.New())
	s.deptA = id.DepartmentID(uuid.New())
	s.deptB = id.DepartmentID(uuid.New())
	s.morning = newSchedule("morning", "08:00", "12:00")
	s.afternoon = newSchedule("afternoon", "13:00", "18:00")
	s.legacy = newSchedule("legacy", "09:00", "17:00")
	s.assignment = newSchedule("assignment override", "07:00", "15:00")
	for _, sched := range []models.Schedule{s.morning, s.afternoon, s.legacy, s.assignment} {
		s.mem.PutSchedule(sched)
	}
	s.mem.SetDepartmentSchedule(s.deptA, s.morning.ID)
	s.mem.SetDepartmentSchedule(s.deptB, s.afternoon.ID)

	var err error
	s.resolver, err = New(s.counting, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithCacheTTL(0))
	s.Require().NoError(err)
}

func (s *ResolverSuite) TestNew() {
	_, err := New(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "schedule store is required")
}

func (s *ResolverSuite) TestPrecedence() {
	ctx := context.Background()

	s.Run("no schedule anywhere is nil without error", func() {
		got, err := s.resolver.Resolve(ctx, s.employee, nil)
		s.Require().NoError(err)
		s.Nil(got)
	})

	s.Run("legacy employee schedule is the last resort", func() {
		s.mem.SetEmployeeSchedule(s.employee, s.legacy.ID)
		got, err := s.resolver.Resolve(ctx, s.employee, nil)
		s.Require().NoError(err)
		s.Require().NotNil(got)
		s.Equal(s.legacy.ID, got.ID)
	})

	s.Run("primary department beats legacy", func() {
		s.mem.Assign(s.employee, s.deptA, nil, true)
		got, err := s.resolver.Resolve(ctx, s.employee, nil)
		s.Require().NoError(err)
		s.Equal(s.morning.ID, got.ID)
	})

	s.Run("department context beats primary", func() {
		s.mem.Assign(s.employee, s.deptB, nil, false)
		got, err := s.resolver.Resolve(ctx, s.employee, &s.deptB)
		s.Require().NoError(err)
		s.Equal(s.afternoon.ID, got.ID)
	})

	s.Run("assignment override beats department default", func() {
		s.mem.Assign(s.employee, s.deptB, &s.assignment.ID, false)
		got, err := s.resolver.Resolve(ctx, s.employee, &s.deptB)
		s.Require().NoError(err)
		s.Equal(s.assignment.ID, got.ID)
	})

	s.Run("unassigned department context falls through to primary", func() {
		other := id.DepartmentID(uuid.New())
		got, err := s.resolver.Resolve(ctx, s.employee, &other)
		s.Require().NoError(err)
		s.Equal(s.morning.ID, got.ID)
	})
}

func (s *ResolverSuite) TestShortCircuit() {
	s.mem.Assign(s.employee, s.deptA, nil, true)
	s.mem.SetEmployeeSchedule(s.employee, s.legacy.ID)

	_, err := s.resolver.Resolve(context.Background(), s.employee, &s.deptA)
	s.Require().NoError(err)
	s.Equal([]string{"department"}, s.counting.calls)

	s.counting.calls = nil
	_, err = s.resolver.Resolve(context.Background(), s.employee, nil)
	s.Require().NoError(err)
	s.Equal([]string{"primary"}, s.counting.calls)
}

func (s *ResolverSuite) TestStoreFailure() {
	s.counting.err = errors.New("connection reset")
	_, err := s.resolver.Resolve(context.Background(), s.employee, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	s.counting.err = context.DeadlineExceeded
	_, err = s.resolver.Resolve(context.Background(), s.employee, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ResolverSuite) TestCaching() {
	cached, err := New(s.counting, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.mem.SetEmployeeSchedule(s.employee, s.legacy.ID)

	for range 3 {
		got, err := cached.Resolve(context.Background(), s.employee, nil)
		s.Require().NoError(err)
		s.Equal(s.legacy.ID, got.ID)
	}
	s.Equal([]string{"primary", "employee"}, s.counting.calls)
	s.Equal(uint64(2), cached.CacheStats().Hits)

	s.Run("invalidation forces a fresh lookup", func() {
		s.mem.Assign(s.employee, s.deptA, nil, true)
		s.Equal(1, cached.InvalidateEmployee(s.employee))

		got, err := cached.Resolve(context.Background(), s.employee, nil)
		s.Require().NoError(err)
		s.Equal(s.morning.ID, got.ID)
	})

	s.Run("nil result is cached too", func() {
		other := id.EmployeeID(uuid.New())
		s.counting.calls = nil
		for range 2 {
			got, err := cached.Resolve(context.Background(), other, nil)
			s.Require().NoError(err)
			s.Nil(got)
		}
		s.Equal([]string{"primary", "employee"}, s.counting.calls)
	})
}
