package rules

import (
	"fmt"
	"time"

	"punchclock/internal/punch/models"
)

// Summarize computes the running daily summary. Time worked runs from entry to
// exit, or to asOf while the day is open, minus the break. An open break is
// counted up to exit or asOf. The result never goes below zero.
func Summarize(day time.Time, today []models.Punch, asOf time.Time) models.DailySummary {
	s := models.DailySummary{Date: day.Format(time.DateOnly)}
	for i := range today {
		at := today[i].At
		switch today[i].Type {
		case models.TypeEntry:
			s.Entry = &at
		case models.TypeBreakStart:
			s.BreakStart = &at
		case models.TypeBreakEnd:
			s.BreakEnd = &at
		case models.TypeExit:
			s.Exit = &at
		}
	}
	s.Complete = s.Exit != nil

	if s.Entry != nil {
		end := asOf
		if s.Exit != nil {
			end = *s.Exit
		}
		worked := end.Sub(*s.Entry)
		if s.BreakStart != nil {
			breakEnd := end
			if s.BreakEnd != nil {
				breakEnd = *s.BreakEnd
			}
			if b := breakEnd.Sub(*s.BreakStart); b > 0 {
				worked -= b
			}
		}
		if worked < 0 {
			worked = 0
		}
		s.WorkedMinutes = int(worked / time.Minute)
	}
	s.Worked = fmt.Sprintf("%dh%02dm", s.WorkedMinutes/60, s.WorkedMinutes%60)
	return s
}
