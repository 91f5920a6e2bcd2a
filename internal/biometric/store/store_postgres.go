package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/sentinel"
	txcontext "punchclock/pkg/platform/tx"
)

// PostgresStore reads and writes face templates on the employees table.
// Templates live in a double precision[] column and are converted exactly once here.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
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

const identityColumns = `id, name, national_id, active, face_template IS NOT NULL`

// ListEnrolled returns every employee with a stored template, active or not.
// Rows whose template cannot be decoded are returned as-is so the match engine can skip and log them.
func (s *PostgresStore) ListEnrolled(ctx context.Context) ([]models.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, name, national_id, active, face_template
		FROM employees
		WHERE face_template IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list enrolled templates: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var (
			rawID    uuid.UUID
			entry    models.Entry
			template []float64
		)
		if err := rows.Scan(&rawID, &entry.Name, &entry.NationalID, &entry.Active, pq.Array(&template)); err != nil {
			return nil, fmt.Errorf("scan enrolled template: %w", err)
		}
		entry.EmployeeID = id.EmployeeID(rawID)
		entry.Template = template
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled templates: %w", err)
	}
	return entries, nil
}

// GetEmployee returns sentinel.ErrNotFound for unknown ids.
func (s *PostgresStore) GetEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM employees WHERE id = $1`, employeeID.String())
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("get employee %s: %w", employeeID, err)
	}
	return identity, nil
}

// FindByNationalID looks up an employee by the normalized form of the national identifier.
func (s *PostgresStore) FindByNationalID(ctx context.Context, normalized string) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM employees WHERE national_id_normalized = $1`, normalized)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("find employee by identifier: %w", err)
	}
	return identity, nil
}

// SaveTemplate replaces the employee's template.
func (s *PostgresStore) SaveTemplate(ctx context.Context, employeeID id.EmployeeID, template models.Template, at time.Time) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE employees
		SET face_template = $2, face_updated_at = $3
		WHERE id = $1
		RETURNING `+identityColumns,
		employeeID.String(), pq.Array([]float64(template)), at)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("save template for %s: %w", employeeID, err)
	}
	return identity, nil
}

// ClearTemplate removes the employee's template.
func (s *PostgresStore) ClearTemplate(ctx context.Context, employeeID id.EmployeeID) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE employees
		SET face_template = NULL, face_updated_at = NOW()
		WHERE id = $1
		RETURNING `+identityColumns,
		employeeID.String())
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("clear template for %s: %w", employeeID, err)
	}
	return identity, nil
}

func scanIdentity(row *sql.Row) (*models.Identity, error) {
	var (
		rawID    uuid.UUID
		identity models.Identity
	)
	err := row.Scan(&rawID, &identity.Name, &identity.NationalID, &identity.Active, &identity.Enrolled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	identity.ID = id.EmployeeID(rawID)
	return &identity, nil
}
