package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"punchclock/internal/platform/postgres"
	"punchclock/internal/punch/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/sentinel"
	txcontext "punchclock/pkg/platform/tx"
)

// PostgresStore persists punches. The punches_one_per_type constraint is the
// only guard against two punches of the same type on the same day.
type PostgresStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewPostgres creates a store that interprets punch_date in loc.
func NewPostgres(db *sql.DB, loc *time.Location) *PostgresStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{db: db, loc: loc}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const punchColumns = `id, employee_id, punch_date::text, punch_type, punched_at,
	classification, delta_minutes, source, device, distance`

// Insert writes p. A second punch of the same type on the same day returns an
// error wrapping sentinel.ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, p models.Punch) error {
	var (
		classification sql.NullString
		delta          sql.NullInt64
		distance       sql.NullFloat64
	)
	if p.Validation.Checked {
		classification = sql.NullString{String: string(p.Validation.Classification), Valid: true}
		delta = sql.NullInt64{Int64: int64(p.Validation.DeltaMinutes), Valid: true}
	}
	if p.Distance != nil {
		distance = sql.NullFloat64{Float64: *p.Distance, Valid: true}
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO punches (id, employee_id, punch_date, punch_type, punched_at,
			classification, delta_minutes, source, device, distance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(p.ID), uuid.UUID(p.EmployeeID), p.Date.Format(time.DateOnly), string(p.Type), p.At,
		classification, delta, string(p.Source), p.Device, distance,
	)
	if err != nil {
		return fmt.Errorf("insert punch: %w", postgres.TranslateError(err))
	}
	return nil
}

// ListDay returns the employee's punches for date ordered by time.
func (s *PostgresStore) ListDay(ctx context.Context, employeeID id.EmployeeID, date time.Time) ([]models.Punch, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+punchColumns+`
		FROM punches
		WHERE employee_id = $1 AND punch_date = $2
		ORDER BY punched_at, id
	`, uuid.UUID(employeeID), date.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("list punches: %w", err)
	}
	defer rows.Close()

	var out []models.Punch
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate punches: %w", err)
	}
	return out, nil
}

// Get returns the punch of type t on date, or sentinel.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, employeeID id.EmployeeID, date time.Time, t models.Type) (*models.Punch, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+punchColumns+`
		FROM punches
		WHERE employee_id = $1 AND punch_date = $2 AND punch_type = $3
	`, uuid.UUID(employeeID), date.Format(time.DateOnly), string(t))
	p, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scan(row scanner) (*models.Punch, error) {
	var (
		p              models.Punch
		rawID, rawEmp  uuid.UUID
		date, typ, src string
		classification sql.NullString
		delta          sql.NullInt64
		distance       sql.NullFloat64
	)
	err := row.Scan(&rawID, &rawEmp, &date, &typ, &p.At, &classification, &delta, &src, &p.Device, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan punch: %w", err)
	}
	p.ID = id.PunchID(rawID)
	p.EmployeeID = id.EmployeeID(rawEmp)
	p.Type = models.Type(typ)
	p.Source = models.Source(src)
	p.At = p.At.In(s.loc)
	if p.Date, err = time.ParseInLocation(time.DateOnly, date, s.loc); err != nil {
		return nil, fmt.Errorf("decode punch date: %w", err)
	}
	if classification.Valid {
		p.Validation.Checked = true
		p.Validation.Classification = models.Classification(classification.String)
		p.Validation.OnTime = p.Validation.Classification == models.OnTime
		p.Validation.DeltaMinutes = int(delta.Int64)
	} else {
		p.Validation.OnTime = true
	}
	if distance.Valid {
		d := distance.Float64
		p.Distance = &d
	}
	return &p, nil
}
