package rules

import (
	"time"

	"punchclock/internal/punch/models"
	schedule "punchclock/internal/schedule/models"
)

// ExpectedClock returns the schedule time for a punch type, or nil when the
// schedule does not define one.
func ExpectedClock(t models.Type, sched *schedule.Schedule) *schedule.Clock {
	if sched == nil {
		return nil
	}
	switch t {
	case models.TypeEntry:
		return &sched.Start
	case models.TypeExit:
		return &sched.End
	case models.TypeBreakStart:
		if sched.HasBreak() {
			return sched.BreakStart
		}
	case models.TypeBreakEnd:
		if sched.HasBreak() {
			return sched.BreakEnd
		}
	}
	return nil
}

// Validate classifies attempt against the schedule time for t.
// The delta is whole minutes, truncated toward zero, positive when late.
// Without an applicable schedule time the punch is valid and unclassified.
func Validate(t models.Type, attempt time.Time, sched *schedule.Schedule, toleranceMinutes int) models.Validation {
	clock := ExpectedClock(t, sched)
	if clock == nil {
		return models.Validation{OnTime: true, Tolerance: toleranceMinutes}
	}
	expected := clock.On(attempt)
	delta := int(attempt.Sub(expected) / time.Minute)

	v := models.Validation{
		Checked:      true,
		DeltaMinutes: delta,
		Expected:     &expected,
		Tolerance:    toleranceMinutes,
	}
	switch {
	case delta > toleranceMinutes:
		v.Classification = models.Late
	case delta < -toleranceMinutes:
		v.Classification = models.Early
	default:
		v.Classification = models.OnTime
		v.OnTime = true
	}
	return v
}
