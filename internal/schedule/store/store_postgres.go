package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"punchclock/internal/schedule/models"
	id "punchclock/pkg/domain"
	txcontext "punchclock/pkg/platform/tx"
)

// PostgresStore reads schedules and the assignments that point at them.
// Every lookup returns (nil, nil) when nothing is assigned.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const scheduleColumns = `s.id, s.name,
	to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI'),
	to_char(s.break_start, 'HH24:MI'), to_char(s.break_end, 'HH24:MI')`

// DepartmentSchedule returns the schedule of the employee's assignment to departmentID,
// falling back to the department's own schedule.
func (s *PostgresStore) DepartmentSchedule(ctx context.Context, employeeID id.EmployeeID, departmentID id.DepartmentID) (*models.Schedule, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM employee_departments ed
		JOIN departments d ON d.id = ed.department_id
		JOIN schedules s ON s.id = COALESCE(ed.schedule_id, d.schedule_id)
		WHERE ed.employee_id = $1 AND ed.department_id = $2
	`, uuid.UUID(employeeID), uuid.UUID(departmentID))
	return scanSchedule(row, "department schedule")
}

// PrimarySchedule returns the schedule of the employee's primary department assignment.
func (s *PostgresStore) PrimarySchedule(ctx context.Context, employeeID id.EmployeeID) (*models.Schedule, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM employee_departments ed
		JOIN departments d ON d.id = ed.department_id
		JOIN schedules s ON s.id = COALESCE(ed.schedule_id, d.schedule_id)
		WHERE ed.employee_id = $1 AND ed.is_primary
	`, uuid.UUID(employeeID))
	return scanSchedule(row, "primary schedule")
}

// EmployeeSchedule returns the schedule set directly on the employee record.
func (s *PostgresStore) EmployeeSchedule(ctx context.Context, employeeID id.EmployeeID) (*models.Schedule, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM employees e
		JOIN schedules s ON s.id = e.schedule_id
		WHERE e.id = $1
	`, uuid.UUID(employeeID))
	return scanSchedule(row, "employee schedule")
}

func scanSchedule(row *sql.Row, what string) (*models.Schedule, error) {
	var (
		rawID                uuid.UUID
		sched                models.Schedule
		start, end           string
		breakStart, breakEnd sql.NullString
	)
	err := row.Scan(&rawID, &sched.Name, &start, &end, &breakStart, &breakEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", what, err)
	}
	sched.ID = id.ScheduleID(rawID)
	if sched.Start, err = models.ParseClock(start); err != nil {
		return nil, fmt.Errorf("decode %s start: %w", what, err)
	}
	if sched.End, err = models.ParseClock(end); err != nil {
		return nil, fmt.Errorf("decode %s end: %w", what, err)
	}
	if breakStart.Valid && breakEnd.Valid {
		bs, err := models.ParseClock(breakStart.String)
		if err != nil {
			return nil, fmt.Errorf("decode %s break start: %w", what, err)
		}
		be, err := models.ParseClock(breakEnd.String)
		if err != nil {
			return nil, fmt.Errorf("decode %s break end: %w", what, err)
		}
		sched.BreakStart, sched.BreakEnd = &bs, &be
	}
	return &sched, nil
}
