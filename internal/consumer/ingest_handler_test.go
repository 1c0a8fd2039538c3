package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/events"
	"example.com/practice/internal/persistence/memory"
)

func eventMessage(t *testing.T, eventType string, payload any) Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{Topic: "practice.events", EventType: eventType, Payload: body}
}

func TestIngestHandlerStoresPracticeOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	handler := NewIngestHandler(store, discardLogger())

	msg := eventMessage(t, events.TypePracticeLogged, events.PracticeLogged{
		EventID:     "evt-1",
		UserID:      "u1",
		Source:      "series",
		ItemID:      "sun-a",
		ItemName:    "Sun Salutation A",
		PerformedAt: time.Date(2025, 10, 29, 7, 0, 0, 0, time.UTC),
	})
	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	counts, err := store.SourceCounts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, map[activity.SourceType]int{activity.SourceSeries: 1}, counts)
}

func TestIngestHandlerRecordsLoginAndProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	handler := NewIngestHandler(store, discardLogger())

	at := time.Date(2025, 10, 29, 6, 0, 0, 0, time.UTC)
	require.NoError(t, handler.Handle(ctx, eventMessage(t, events.TypeUserLoggedIn, events.UserLoggedIn{
		EventID: "login-1", UserID: "u1", Email: "u1@example.com", Timezone: "Europe/Berlin", LoggedInAt: at,
	})))

	u, ok, err := store.User(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Europe/Berlin", u.Timezone)

	logins, err := store.LoginRecords(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, logins, 1)
	require.True(t, at.Equal(logins[0].PerformedAt))
}

func TestIngestHandlerRejectsMalformedEvents(t *testing.T) {
	handler := NewIngestHandler(memory.NewStore(), discardLogger())
	ctx := context.Background()

	err := handler.Handle(ctx, eventMessage(t, events.TypePracticeLogged, events.PracticeLogged{
		EventID: "evt-2", UserID: "u1", Source: "login", PerformedAt: time.Now(),
	}))
	require.ErrorIs(t, err, ErrMalformed)

	err = handler.Handle(ctx, Message{EventType: events.TypeUserLoggedIn, Payload: []byte(`{"event_id":1}`)})
	require.ErrorIs(t, err, ErrMalformed)

	require.NoError(t, handler.Handle(ctx, Message{EventType: "user.deleted", Payload: []byte(`{}`)}))
}
