// Package datekey converts instants into local calendar-day keys.
//
// Offsets follow the browser getTimezoneOffset convention: the number of
// minutes local time is behind UTC. New York in winter is 300, Tokyo is -540.
package datekey

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MaxOffsetMinutes bounds offsets to the widest real-world zones (UTC-14..UTC+14).
const MaxOffsetMinutes = 840

const layout = "2006-01-02"

// ErrInvalidKey is returned when a string is not a YYYY-MM-DD day key.
var ErrInvalidKey = errors.New("invalid date key")

// Key is a calendar day in the form YYYY-MM-DD. Keys sort lexically in day order.
type Key string

// ClampOffset limits an offset to [-840, 840].
func ClampOffset(offsetMinutes int) int {
	if offsetMinutes > MaxOffsetMinutes {
		return MaxOffsetMinutes
	}
	if offsetMinutes < -MaxOffsetMinutes {
		return -MaxOffsetMinutes
	}
	return offsetMinutes
}

// FromTime returns the local day containing t under the given offset.
func FromTime(t time.Time, offsetMinutes int) Key {
	shifted := t.UTC().Add(-time.Duration(ClampOffset(offsetMinutes)) * time.Minute)
	return Key(shifted.Format(layout))
}

// Today returns the key for now under the given offset.
func Today(offsetMinutes int, now time.Time) Key {
	return FromTime(now, offsetMinutes)
}

// LocalTime returns t shifted into the offset's wall clock, expressed in UTC.
// Only the calendar and clock fields of the result are meaningful.
func LocalTime(t time.Time, offsetMinutes int) time.Time {
	return t.UTC().Add(-time.Duration(ClampOffset(offsetMinutes)) * time.Minute)
}

// UniqueSorted maps instants to keys, removes duplicates and sorts most recent first.
func UniqueSorted(instants []time.Time, offsetMinutes int) []Key {
	seen := make(map[Key]struct{}, len(instants))
	keys := make([]Key, 0, len(instants))
	for _, t := range instants {
		k := FromTime(t, offsetMinutes)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	SortDescending(keys)
	return keys
}

// SortDescending orders keys most recent first.
func SortDescending(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
}

// Parse validates s as a day key.
func Parse(s string) (Key, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key(t.Format(layout)), nil
}

// Time returns midnight UTC of the key's day. The zero time is returned for malformed keys.
func (k Key) Time() time.Time {
	t, err := time.Parse(layout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// DayNumber is a proleptic Gregorian day count (days since 1970-01-01).
// Subtracting two day numbers gives the whole-day distance without DST effects.
func (k Key) DayNumber() int {
	return int(k.Time().Unix() / 86400)
}

// AddDays shifts the key by n calendar days.
func (k Key) AddDays(n int) Key {
	return Key(k.Time().AddDate(0, 0, n).Format(layout))
}

// MonthKey returns the YYYY-MM prefix.
func (k Key) MonthKey() string {
	if len(k) < 7 {
		return ""
	}
	return string(k[:7])
}

// Weekday reports the day of week of the key.
func (k Key) Weekday() time.Weekday {
	return k.Time().Weekday()
}

func (k Key) String() string { return string(k) }

// DaysBetween returns later - earlier in whole days.
func DaysBetween(later, earlier Key) int {
	return later.DayNumber() - earlier.DayNumber()
}

// OffsetFor returns the getTimezoneOffset-style offset of loc at instant t.
func OffsetFor(loc *time.Location, t time.Time) int {
	if loc == nil {
		return 0
	}
	_, secondsEast := t.In(loc).Zone()
	return ClampOffset(-secondsEast / 60)
}

// LoadOffset resolves an IANA zone name and returns its offset at t.
// Unknown or empty zones resolve to UTC.
func LoadOffset(zone string, t time.Time) int {
	if zone == "" {
		return 0
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return 0
	}
	return OffsetFor(loc, t)
}
