package domain_test

import (
	"context"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/clock"
	"example.com/practice/internal/domain"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/persistence/memory"
)

var now = time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*domain.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.UpsertUser(context.Background(), notify.Recipient{UserID: "u1", Timezone: "America/New_York"}))
	return domain.NewService(store, domain.WithClock(clock.Fixed(now))), store
}

func insert(t *testing.T, store *memory.Store, id string, src activity.SourceType, item string, at time.Time) {
	t.Helper()
	_, err := store.InsertActivity(context.Background(), activity.Record{
		ID: id, UserID: "u1", ItemID: item, ItemName: item, Source: src, PerformedAt: at,
	})
	require.NoError(t, err)
}

func TestSummaryCountsUniquePracticeDays(t *testing.T) {
	svc, store := newService(t)
	insert(t, store, "a", activity.SourcePose, "tree", time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC))
	insert(t, store, "b", activity.SourceSeries, "sun", time.Date(2025, 10, 27, 15, 0, 0, 0, time.UTC))
	insert(t, store, "c", activity.SourcePose, "tree", time.Date(2025, 10, 28, 9, 0, 0, 0, time.UTC))
	insert(t, store, "d", activity.SourceSequence, "flow", time.Date(2025, 10, 29, 9, 0, 0, 0, time.UTC))
	insert(t, store, "l", activity.SourceLogin, "", time.Date(2025, 10, 29, 8, 0, 0, 0, time.UTC))

	offset := 0
	summary, err := svc.Summary(context.Background(), "u1", &offset)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Practice.Current)
	require.True(t, summary.Practice.ActiveToday)
	require.False(t, summary.Practice.AtRisk)
	require.Equal(t, 3, summary.Longest)
	require.Equal(t, 1, summary.Login.Current)
	require.Equal(t, "Practice 27 More Days", summary.Goal.Headline)
	require.EqualValues(t, "2025-10-29", summary.Today)
}

func TestSummaryUsesStoredTimezone(t *testing.T) {
	svc, store := newService(t)
	// 02:00Z on the 29th is still the 28th in New York.
	insert(t, store, "a", activity.SourcePose, "tree", time.Date(2025, 10, 29, 2, 0, 0, 0, time.UTC))

	summary, err := svc.Summary(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Equal(t, 240, summary.OffsetMinutes)
	require.Equal(t, 1, summary.Practice.Current)
	require.False(t, summary.Practice.ActiveToday)
	require.True(t, summary.Practice.AtRisk)
}

func TestSummaryErrors(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Summary(context.Background(), "missing", nil)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	bad := 900
	_, err = svc.Summary(context.Background(), "u1", &bad)
	require.ErrorIs(t, err, domain.ErrInvalidOffset)
}

func TestHistoryAndMostCommon(t *testing.T) {
	svc, store := newService(t)
	for i := 0; i < 4; i++ {
		insert(t, store, fmt.Sprintf("tree-%d", i), activity.SourcePose, "tree", now.AddDate(0, 0, -i))
	}
	insert(t, store, "crow", activity.SourcePose, "crow", now.AddDate(0, 0, -1))
	insert(t, store, "old", activity.SourcePose, "lotus", now.AddDate(-2, 0, 0))

	offset := 0
	history, err := svc.History(context.Background(), "u1", &offset)
	require.NoError(t, err)
	require.Len(t, history, activity.HistoryMonths)
	require.Equal(t, "2025-10", history[len(history)-1].Month)
	require.Equal(t, 4, history[len(history)-1].Days)

	ranked, err := svc.MostCommon(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.Len(t, ranked[activity.SourcePose], 2)
	require.Equal(t, "tree", ranked[activity.SourcePose][0].ItemID)
	require.Equal(t, 4, ranked[activity.SourcePose][0].Count)
	require.Empty(t, ranked[activity.SourceSeries])
}

func TestNotificationLog(t *testing.T) {
	svc, store := newService(t)
	require.NoError(t, store.Append(context.Background(), notify.LogEntry{
		ID: "e1", UserID: "u1", Trigger: notify.MilestoneTrigger(10), SentAt: now,
	}))

	entries, next, err := svc.NotificationLog(context.Background(), "u1", nil, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, next)
}
