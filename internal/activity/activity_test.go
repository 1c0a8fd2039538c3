package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/practice/internal/datekey"
)

func ts(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

type stubSource struct {
	practice map[SourceType][]Record
	logins   []Record
	err      error
}

func (s *stubSource) PracticeRecords(_ context.Context, _ string, source SourceType, _ time.Time) ([]Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]Record(nil), s.practice[source]...), nil
}

func (s *stubSource) LoginRecords(_ context.Context, _ string, _ time.Time) ([]Record, error) {
	return append([]Record(nil), s.logins...), nil
}

func TestFetchTagsAndSortsDescending(t *testing.T) {
	src := &stubSource{
		practice: map[SourceType][]Record{
			SourcePose:     {{ID: "p1", PerformedAt: ts(time.October, 27, 8)}},
			SourceSeries:   {{ID: "s1", PerformedAt: ts(time.October, 29, 8)}},
			SourceSequence: {{ID: "q1", PerformedAt: ts(time.October, 28, 8)}},
		},
		logins: []Record{{ID: "l1", PerformedAt: ts(time.October, 30, 8)}},
	}
	agg := NewAggregator(src)

	records, err := agg.Fetch(context.Background(), "user-1", time.Time{}, false)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "s1", records[0].ID)
	require.Equal(t, SourceSeries, records[0].Source)
	require.Equal(t, SourceSequence, records[1].Source)
	require.Equal(t, SourcePose, records[2].Source)

	withLogins, err := agg.Fetch(context.Background(), "user-1", time.Time{}, true)
	require.NoError(t, err)
	require.Len(t, withLogins, 4)
	require.Equal(t, SourceLogin, withLogins[0].Source)
}

func TestFetchPropagatesSourceErrors(t *testing.T) {
	agg := NewAggregator(&stubSource{err: errors.New("db down")})

	_, err := agg.Fetch(context.Background(), "user-1", time.Time{}, false)
	require.ErrorContains(t, err, "db down")
}

func TestDayKeysCollapseSameDay(t *testing.T) {
	records := []Record{
		{PerformedAt: ts(time.October, 27, 8), Source: SourcePose},
		{PerformedAt: ts(time.October, 27, 17), Source: SourceSeries},
		{PerformedAt: ts(time.October, 28, 9), Source: SourcePose},
	}
	require.Equal(t, []datekey.Key{"2025-10-28", "2025-10-27"}, DayKeys(records, 0))
	require.Len(t, Filter(records, SourcePose), 2)
}

func TestMonthlyHistoryUsesViewerMonthBoundaries(t *testing.T) {
	now := ts(time.November, 1, 2) // 1 Nov 02:00Z is still 31 Oct in UTC-5
	records := []Record{
		{PerformedAt: ts(time.November, 1, 1)},  // 31 Oct local
		{PerformedAt: ts(time.October, 31, 12)}, // 31 Oct local, same day
		{PerformedAt: ts(time.October, 2, 12)},
		{PerformedAt: ts(time.September, 30, 12)},
		{PerformedAt: time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC)}, // outside window
	}

	history := MonthlyHistory(records, 300, now)
	require.Len(t, history, HistoryMonths)
	require.Equal(t, "2024-11", history[0].Month)
	require.Equal(t, "2025-10", history[11].Month)
	require.Equal(t, "Oct 2025", history[11].Label)
	require.Equal(t, 2, history[11].Days)
	require.Equal(t, 1, history[10].Days)

	utc := MonthlyHistory(records, 0, now)
	require.Equal(t, "2025-11", utc[11].Month)
	require.Equal(t, 1, utc[11].Days)
}

func TestMostCommonRanksWithStableTies(t *testing.T) {
	now := ts(time.October, 29, 12)
	records := []Record{
		{ItemID: "tree", ItemName: "Tree", Source: SourcePose, PerformedAt: ts(time.October, 29, 8)},
		{ItemID: "crow", ItemName: "Crow", Source: SourcePose, PerformedAt: ts(time.October, 28, 8)},
		{ItemID: "warrior", ItemName: "Warrior II", Source: SourcePose, PerformedAt: ts(time.October, 27, 8)},
		{ItemID: "warrior", ItemName: "Warrior II", Source: SourcePose, PerformedAt: ts(time.October, 26, 8)},
		{ItemID: "lotus", ItemName: "Lotus", Source: SourcePose, PerformedAt: ts(time.October, 25, 8)},
		{ItemID: "flow", ItemName: "Sun Flow", Source: SourceSeries, PerformedAt: ts(time.October, 25, 8)},
		{ItemID: "old", ItemName: "Old", Source: SourcePose, PerformedAt: time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)},
		{ItemID: "old", ItemName: "Old", Source: SourcePose, PerformedAt: time.Date(2024, time.September, 2, 0, 0, 0, 0, time.UTC)},
	}

	ranked := MostCommon(records, SourcePose, now, 0)
	require.Len(t, ranked, 3)
	require.Equal(t, "warrior", ranked[0].ItemID)
	require.Equal(t, 2, ranked[0].Count)
	require.Equal(t, "tree", ranked[1].ItemID)
	require.Equal(t, "crow", ranked[2].ItemID)

	series := MostCommon(records, SourceSeries, now, 5)
	require.Equal(t, []Ranked{{ItemID: "flow", ItemName: "Sun Flow", Source: SourceSeries, Count: 1}}, series)
}
