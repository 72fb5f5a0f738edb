package quota

import "time"

// startOfWeek returns the most recent Monday 00:00 in the instant's location.
// Sunday counts as the last day of the week, not the first.
func startOfWeek(now time.Time) time.Time {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := now.AddDate(0, 0, -(weekday - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

// sameCalendarMonth reports whether both instants fall in the same month and year.
func sameCalendarMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
