package models

import (
	"fmt"
	"strconv"
	"time"

	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
)

// Clock is a wall-clock time of day with minute precision, stored as minutes after midnight.
type Clock int

// ParseClock accepts "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	invalid := dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid time of day %q: expected HH:MM", s))
	if len(s) != 5 || s[2] != ':' {
		return 0, invalid
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, invalid
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, invalid
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places the clock on day's calendar date in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Schedule is a work schedule. The break is either fully defined or absent.
type Schedule struct {
	ID         id.ScheduleID `json:"id"`
	Name       string        `json:"name"`
	Start      Clock         `json:"start"`
	End        Clock         `json:"end"`
	BreakStart *Clock        `json:"break_start,omitempty"`
	BreakEnd   *Clock        `json:"break_end,omitempty"`
}

// HasBreak reports whether both break bounds are set.
func (s *Schedule) HasBreak() bool {
	return s != nil && s.BreakStart != nil && s.BreakEnd != nil
}
