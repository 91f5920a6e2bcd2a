// Package resolver picks the work schedule that applies to an employee.
//
// Precedence is an ordered list of strategies; the first one that yields a
// schedule wins and later ones are not consulted. "No schedule" is a normal
// result, not an error.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"punchclock/internal/schedule/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/readcache"
)

// Store exposes the three places a schedule can be attached.
type Store interface {
	DepartmentSchedule(ctx context.Context, employeeID id.EmployeeID, departmentID id.DepartmentID) (*models.Schedule, error)
	PrimarySchedule(ctx context.Context, employeeID id.EmployeeID) (*models.Schedule, error)
	EmployeeSchedule(ctx context.Context, employeeID id.EmployeeID) (*models.Schedule, error)
}

// Query identifies whose schedule is being resolved.
type Query struct {
	EmployeeID   id.EmployeeID
	DepartmentID *id.DepartmentID
}

// Strategy is one precedence step. It returns (nil, nil) to defer to the next step.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, q Query) (*models.Schedule, error)
}

// DefaultStrategies is department context, then primary department, then the legacy employee column.
func DefaultStrategies(store Store) []Strategy {
	return []Strategy{
		{
			Name: "department_context",
			Resolve: func(ctx context.Context, q Query) (*models.Schedule, error) {
				if q.DepartmentID == nil {
					return nil, nil
				}
				return store.DepartmentSchedule(ctx, q.EmployeeID, *q.DepartmentID)
			},
		},
		{
			Name: "primary_department",
			Resolve: func(ctx context.Context, q Query) (*models.Schedule, error) {
				return store.PrimarySchedule(ctx, q.EmployeeID)
			},
		},
		{
			Name: "employee",
			Resolve: func(ctx context.Context, q Query) (*models.Schedule, error) {
				return store.EmployeeSchedule(ctx, q.EmployeeID)
			},
		},
	}
}

// Resolver applies strategies in order, memoizing results per employee and department.
type Resolver struct {
	strategies []Strategy
	cache      *readcache.Cache[*models.Schedule]
	logger     *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithCacheTTL sets how long a resolution is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl <= 0 {
			r.cache = nil
			return
		}
		r.cache = readcache.New[*models.Schedule](ttl)
	}
}

// WithStrategies replaces the default precedence list.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

func New(store Store, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("schedule store is required")
	}
	r := &Resolver{
		strategies: DefaultStrategies(store),
		cache:      readcache.New[*models.Schedule](time.Minute),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the applicable schedule, or nil when none is attached anywhere.
// Errors are only returned when the store could not be read.
func (r *Resolver) Resolve(ctx context.Context, employeeID id.EmployeeID, departmentID *id.DepartmentID) (*models.Schedule, error) {
	q := Query{EmployeeID: employeeID, DepartmentID: departmentID}
	if r.cache == nil {
		return r.resolve(ctx, q)
	}
	return r.cache.GetOrLoad(ctx, cacheKey(q), func(ctx context.Context) (*models.Schedule, error) {
		return r.resolve(ctx, q)
	})
}

func (r *Resolver) resolve(ctx context.Context, q Query) (*models.Schedule, error) {
	for _, strategy := range r.strategies {
		sched, err := strategy.Resolve(ctx, q)
		if err != nil {
			r.logger.ErrorContext(ctx, "schedule lookup failed",
				"strategy", strategy.Name,
				"employee_id", q.EmployeeID,
				"error", err,
			)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "schedule lookup timed out")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "schedule store unavailable")
		}
		if sched != nil {
			r.logger.DebugContext(ctx, "schedule resolved",
				"strategy", strategy.Name,
				"employee_id", q.EmployeeID,
				"schedule_id", sched.ID,
			)
			return sched, nil
		}
	}
	return nil, nil
}

// InvalidateEmployee drops every cached resolution for the employee.
func (r *Resolver) InvalidateEmployee(employeeID id.EmployeeID) int {
	if r.cache == nil {
		return 0
	}
	return r.cache.InvalidatePrefix(employeePrefix(employeeID))
}

// InvalidateAll drops every cached resolution.
func (r *Resolver) InvalidateAll() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.InvalidatePrefix("")
}

// CacheStats reports the memo's hit and miss counters.
func (r *Resolver) CacheStats() readcache.Stats {
	if r.cache == nil {
		return readcache.Stats{}
	}
	return r.cache.Stats()
}

func employeePrefix(employeeID id.EmployeeID) string {
	return "schedule:" + employeeID.String() + ":"
}

func cacheKey(q Query) string {
	dept := "-"
	if q.DepartmentID != nil {
		dept = q.DepartmentID.String()
	}
	return employeePrefix(q.EmployeeID) + dept
}
