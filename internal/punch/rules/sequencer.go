// Package rules holds the pure punch logic: what comes next, whether it is on
// time, and how much of the day has been worked. Nothing here does I/O.
package rules

import (
	"punchclock/internal/punch/models"
	schedule "punchclock/internal/schedule/models"
)

// State is where an employee's day stands.
type State string

const (
	AwaitingEntry      State = "awaiting_entry"
	AwaitingBreakStart State = "awaiting_break_start"
	AwaitingBreakEnd   State = "awaiting_break_end"
	AwaitingExit       State = "awaiting_exit"
	DayComplete        State = "day_complete"
)

var awaiting = map[models.Type]State{
	models.TypeEntry:      AwaitingEntry,
	models.TypeBreakStart: AwaitingBreakStart,
	models.TypeBreakEnd:   AwaitingBreakEnd,
	models.TypeExit:       AwaitingExit,
}

// Sequence is the ordered list of punches expected for a day under sched.
// Break steps are only included when the schedule defines a break.
func Sequence(sched *schedule.Schedule) []models.Type {
	if sched.HasBreak() {
		return []models.Type{models.TypeEntry, models.TypeBreakStart, models.TypeBreakEnd, models.TypeExit}
	}
	return []models.Type{models.TypeEntry, models.TypeExit}
}

// Next returns the first type in the sequence not yet present in today's
// punches. ok is false when the day is complete.
func Next(today []models.Punch, sched *schedule.Schedule) (next models.Type, ok bool) {
	seen := make(map[models.Type]bool, len(today))
	for _, p := range today {
		seen[p.Type] = true
	}
	for _, t := range Sequence(sched) {
		if !seen[t] {
			return t, true
		}
	}
	return "", false
}

// StateOf reports the sequencer state for today's punches.
func StateOf(today []models.Punch, sched *schedule.Schedule) State {
	next, ok := Next(today, sched)
	if !ok {
		return DayComplete
	}
	return awaiting[next]
}
