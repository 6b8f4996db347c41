package types

import "time"

// TimeInfo describes one simulated trading day.
type TimeInfo struct {
	Time           time.Time
	BusinessDay    bool
	LastDayOfMonth bool
}

func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
