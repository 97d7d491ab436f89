package streak

import "time"

// dateOf truncates a timestamp to its UTC calendar day
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daySet builds the set of distinct UTC calendar days with activity
func daySet(events []time.Time) map[time.Time]bool {
	days := make(map[time.Time]bool, len(events))
	for _, e := range events {
		days[dateOf(e)] = true
	}
	return days
}

// CalculateStreak counts consecutive days with at least one event,
// walking backward from today. A streak may anchor at today or at
// yesterday: a day that has no event yet does not break a streak
// before it ends. Same-day duplicates neither extend nor break.
func CalculateStreak(events []time.Time, now time.Time) int {
	if len(events) == 0 {
		return 0
	}

	days := daySet(events)
	day := dateOf(now)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// LongestStreak scans the full event history for the longest run of
// consecutive active days
func LongestStreak(events []time.Time) int {
	if len(events) == 0 {
		return 0
	}

	days := daySet(events)
	longest := 0
	for day := range days {
		// Only start counting at the beginning of a run
		if days[day.AddDate(0, 0, -1)] {
			continue
		}
		run := 0
		for d := day; days[d]; d = d.AddDate(0, 0, 1) {
			run++
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
