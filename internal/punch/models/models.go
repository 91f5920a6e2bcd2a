package models

import (
	"fmt"
	"time"

	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
)

// Type is one of the four daily punch kinds.
type Type string

const (
	TypeEntry      Type = "entry"
	TypeBreakStart Type = "break_start"
	TypeBreakEnd   Type = "break_end"
	TypeExit       Type = "exit"
)

var labels = map[Type]string{
	TypeEntry:      "Entry",
	TypeBreakStart: "Break start",
	TypeBreakEnd:   "Break end",
	TypeExit:       "Exit",
}

// Label is the human-readable name shown on the kiosk.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown punch type %q", s))
	}
	return t, nil
}

// Classification is the timing verdict against the schedule.
type Classification string

const (
	OnTime Classification = "on_time"
	Early  Classification = "early"
	Late   Classification = "late"
)

// Validation is the result of checking a punch time. Checked is false when no
// schedule time applied; the punch is then on time with no classification.
type Validation struct {
	OnTime         bool           `json:"on_time"`
	Checked        bool           `json:"checked"`
	Classification Classification `json:"classification,omitempty"`
	DeltaMinutes   int            `json:"delta_minutes"`
	Expected       *time.Time     `json:"expected,omitempty"`
	Tolerance      int            `json:"tolerance_minutes"`
}

// Source records how the employee was identified.
type Source string

const (
	SourceFace       Source = "face"
	SourceCredential Source = "credential"
)

// Punch is one recorded attendance event.
type Punch struct {
	ID         id.PunchID    `json:"id"`
	EmployeeID id.EmployeeID `json:"employee_id"`
	Date       time.Time     `json:"date"`
	Type       Type          `json:"type"`
	At         time.Time     `json:"time"`
	Validation Validation    `json:"validation"`
	Source     Source        `json:"source"`
	Device     string        `json:"device,omitempty"`
	Distance   *float64      `json:"distance,omitempty"`
}

// DayOf truncates t to midnight of its calendar date in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DailySummary is the running state of an employee's day.
type DailySummary struct {
	Date          string     `json:"date"`
	Entry         *time.Time `json:"entry,omitempty"`
	BreakStart    *time.Time `json:"break_start,omitempty"`
	BreakEnd      *time.Time `json:"break_end,omitempty"`
	Exit          *time.Time `json:"exit,omitempty"`
	WorkedMinutes int        `json:"worked_minutes"`
	Worked        string     `json:"worked"`
	Complete      bool       `json:"complete"`
}

// OutcomeKind names the structured result of a punch attempt.
type OutcomeKind string

const (
	OutcomeAccepted        OutcomeKind = "accepted"
	OutcomeDayComplete     OutcomeKind = "day_complete"
	OutcomeDuplicate       OutcomeKind = "duplicate"
	OutcomeAlreadyRecorded OutcomeKind = "already_recorded"
	OutcomeNoMatch         OutcomeKind = "no_match"
	OutcomeInactive        OutcomeKind = "inactive_employee"
)

// Outcome is what the kiosk receives. Fields are populated per kind.
type Outcome struct {
	Kind              OutcomeKind    `json:"outcome"`
	EmployeeID        *id.EmployeeID `json:"employee_id,omitempty"`
	EmployeeName      string         `json:"employee_name,omitempty"`
	PunchType         Type           `json:"punch_type,omitempty"`
	PunchLabel        string         `json:"punch_label,omitempty"`
	At                *time.Time     `json:"time,omitempty"`
	NextExpected      *Type          `json:"next_expected,omitempty"`
	NextExpectedLabel string         `json:"next_expected_label,omitempty"`
	Validation        *Validation    `json:"validation,omitempty"`
	Summary           *DailySummary  `json:"daily_summary,omitempty"`
	Message           string         `json:"message,omitempty"`
	BestDistance      *float64       `json:"best_distance,omitempty"`
}
