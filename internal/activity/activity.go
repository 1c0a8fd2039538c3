// Package activity merges practice and login records into one timeline and
// derives monthly histories and "most common" rankings from it.
package activity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/practice/internal/datekey"
)

// SourceType identifies where a record came from.
type SourceType string

const (
	SourcePose     SourceType = "pose"
	SourceSeries   SourceType = "series"
	SourceSequence SourceType = "sequence"
	SourceLogin    SourceType = "login"
)

// PracticeSources are the sources that count as practice.
var PracticeSources = []SourceType{SourcePose, SourceSeries, SourceSequence}

// IsPractice reports whether s counts toward practice streaks.
func (s SourceType) IsPractice() bool {
	return s == SourcePose || s == SourceSeries || s == SourceSequence
}

// Valid reports whether s is a known source.
func (s SourceType) Valid() bool {
	return s.IsPractice() || s == SourceLogin
}

// Record is one immutable activity event.
type Record struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ItemID      string     `json:"item_id,omitempty"`
	ItemName    string     `json:"item_name,omitempty"`
	PerformedAt time.Time  `json:"performed_at"`
	Source      SourceType `json:"source"`
}

// Source reads raw records from the activity store.
type Source interface {
	PracticeRecords(ctx context.Context, userID string, source SourceType, since time.Time) ([]Record, error)
	LoginRecords(ctx context.Context, userID string, since time.Time) ([]Record, error)
}

// Aggregator fetches and merges records from every source.
type Aggregator struct {
	source Source
}

// NewAggregator constructs an Aggregator.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Fetch returns every practice record since the given instant, optionally with
// logins, tagged and sorted most recent first.
func (a *Aggregator) Fetch(ctx context.Context, userID string, since time.Time, includeLogins bool) ([]Record, error) {
	sets := make([][]Record, 0, len(PracticeSources)+1)
	for _, src := range PracticeSources {
		records, err := a.source.PracticeRecords(ctx, userID, src, since)
		if err != nil {
			return nil, fmt.Errorf("fetch %s records: %w", src, err)
		}
		sets = append(sets, tag(records, src))
	}
	if includeLogins {
		logins, err := a.source.LoginRecords(ctx, userID, since)
		if err != nil {
			return nil, fmt.Errorf("fetch login records: %w", err)
		}
		sets = append(sets, tag(logins, SourceLogin))
	}
	return Merge(sets...), nil
}

func tag(records []Record, src SourceType) []Record {
	for i := range records {
		records[i].Source = src
	}
	return records
}

// Merge concatenates record sets and sorts by PerformedAt descending.
// Records with equal timestamps keep their input order.
func Merge(sets ...[]Record) []Record {
	total := 0
	for _, set := range sets {
		total += len(set)
	}
	merged := make([]Record, 0, total)
	for _, set := range sets {
		merged = append(merged, set...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PerformedAt.After(merged[j].PerformedAt)
	})
	return merged
}

// Filter keeps records whose source is in sources.
func Filter(records []Record, sources ...SourceType) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		for _, s := range sources {
			if r.Source == s {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Instants extracts the timestamps of records.
func Instants(records []Record) []time.Time {
	out := make([]time.Time, len(records))
	for i, r := range records {
		out[i] = r.PerformedAt
	}
	return out
}

// DayKeys returns the unique local days of records, most recent first.
func DayKeys(records []Record, offsetMinutes int) []datekey.Key {
	return datekey.UniqueSorted(Instants(records), offsetMinutes)
}
