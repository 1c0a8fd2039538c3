// Package streak computes running and historical streaks over day keys.
package streak

import (
	"sort"
	"time"

	"example.com/practice/internal/datekey"
)

// Status is the live view of a user's streak relative to "today".
// It is recomputed on every query and never stored.
type Status struct {
	Current     int  `json:"current_streak"`
	ActiveToday bool `json:"is_active_today"`
	AtRisk      bool `json:"is_at_risk"`
}

// Compute walks a descending, de-duplicated key sequence.
//
// The streak survives when the most recent key is today or yesterday; any larger
// gap breaks it. Keys must already be unique (see datekey.UniqueSorted).
func Compute(desc []datekey.Key, today datekey.Key) Status {
	if len(desc) == 0 {
		return Status{}
	}

	gap := datekey.DaysBetween(today, desc[0])
	if gap > 1 {
		return Status{}
	}

	current := runLength(desc)
	active := gap == 0
	return Status{
		Current:     current,
		ActiveToday: active,
		AtRisk:      current > 0 && !active,
	}
}

// Start returns the first day of the streak that Compute would report.
func Start(desc []datekey.Key, today datekey.Key) (datekey.Key, bool) {
	status := Compute(desc, today)
	if status.Current == 0 {
		return "", false
	}
	return desc[status.Current-1], true
}

// Longest returns the longest run of consecutive days anywhere in keys.
// Order does not matter; duplicates are ignored.
func Longest(keys []datekey.Key) int {
	if len(keys) == 0 {
		return 0
	}

	days := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		n := k.DayNumber()
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		days = append(days, n)
	}
	sort.Ints(days)

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// FromInstants normalizes raw timestamps and returns the current status and longest streak.
func FromInstants(instants []time.Time, offsetMinutes int, now time.Time) (Status, int) {
	keys := datekey.UniqueSorted(instants, offsetMinutes)
	return Compute(keys, datekey.Today(offsetMinutes, now)), Longest(keys)
}

func runLength(desc []datekey.Key) int {
	n := 1
	for i := 1; i < len(desc); i++ {
		if datekey.DaysBetween(desc[i-1], desc[i]) != 1 {
			break
		}
		n++
	}
	return n
}
