// Package week implements the Monday-to-Sunday calendar convention shared by
// order aggregation, forecast cutoffs and the closed-week status guard. Every
// function operates on UTC dates truncated to midnight.
package week

import "time"

// Truncate drops the time-of-day component and returns the UTC date.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Start returns the Monday of the week containing d.
func Start(d time.Time) time.Time {
	d = Truncate(d)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return d.AddDate(0, 0, -offset)
}

// End returns the Sunday of the week containing d.
func End(d time.Time) time.Time {
	return Start(d).AddDate(0, 0, 6)
}

// Bounds returns the Monday and Sunday of the week containing d.
func Bounds(d time.Time) (start, end time.Time) {
	start = Start(d)
	return start, start.AddDate(0, 0, 6)
}

// Cutoff returns the end date (Sunday) of the most recent week considered
// closed at ref. A week ending today only counts as closed once grace has
// elapsed past midnight, so late-arriving orders from the final day can
// still land before the week is consumed by aggregation.
func Cutoff(ref time.Time, grace time.Duration) time.Time {
	ref = ref.UTC()
	day := Truncate(ref)

	end := day
	if day.Weekday() != time.Sunday {
		end = Start(day).AddDate(0, 0, -1) // Sunday of the previous week
	} else if ref.Sub(day) < grace {
		end = day.AddDate(0, 0, -7)
	}
	return end
}

// LastCompleted returns the bounds of the most recently completed week
// strictly before ref's week. This is the window the change tracker and the
// weekly refresh job inspect.
func LastCompleted(ref time.Time) (start, end time.Time) {
	start = Start(ref).AddDate(0, 0, -7)
	return start, start.AddDate(0, 0, 6)
}

// Closed reports whether the week containing d has ended by today, meaning
// its Sunday is on or before today's date. Status edits on orders from open
// weeks are rejected so aggregation never sees a half-written week.
func Closed(d, today time.Time) bool {
	return !End(d).After(Truncate(today))
}
