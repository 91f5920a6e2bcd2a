package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "punchclock/pkg/domain-errors"
)

// Typed identifiers keep employee, department, schedule and punch IDs from
// being swapped at call sites. Construct them with the Parse functions at
// trust boundaries.
type (
	EmployeeID   uuid.UUID
	DepartmentID uuid.UUID
	ScheduleID   uuid.UUID
	PunchID      uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID("employee_id", s)
	return EmployeeID(u), err
}

func ParseDepartmentID(s string) (DepartmentID, error) {
	u, err := parseUUID("department_id", s)
	return DepartmentID(u), err
}

func ParseScheduleID(s string) (ScheduleID, error) {
	u, err := parseUUID("schedule_id", s)
	return ScheduleID(u), err
}

func ParsePunchID(s string) (PunchID, error) {
	u, err := parseUUID("punch_id", s)
	return PunchID(u), err
}

func (id EmployeeID) String() string   { return uuid.UUID(id).String() }
func (id DepartmentID) String() string { return uuid.UUID(id).String() }
func (id ScheduleID) String() string   { return uuid.UUID(id).String() }
func (id PunchID) String() string      { return uuid.UUID(id).String() }

func (id EmployeeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DepartmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ScheduleID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PunchID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical UUID strings in JSON and cache payloads.
func (id EmployeeID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id DepartmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ScheduleID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id PunchID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *EmployeeID) UnmarshalText(b []byte) error {
	parsed, err := ParseEmployeeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DepartmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDepartmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ScheduleID) UnmarshalText(b []byte) error {
	parsed, err := ParseScheduleID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *PunchID) UnmarshalText(b []byte) error {
	parsed, err := ParsePunchID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewPunchID generates a random punch identifier.
func NewPunchID() PunchID { return PunchID(uuid.New()) }

// NormalizeIdentifier reduces a national identifier to its comparable form:
// punctuation and whitespace are dropped and letters are upper-cased, so
// "123.456.789-09" and "12345678909" compare equal.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
