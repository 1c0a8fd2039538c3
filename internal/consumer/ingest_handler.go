package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/events"
	"example.com/practice/internal/notify"
)

// IngestStore is the write side used by the ingest handler.
type IngestStore interface {
	InsertActivity(ctx context.Context, rec activity.Record) (bool, error)
	UpsertUser(ctx context.Context, u notify.Recipient) error
}

// IngestHandler writes practice and login events into the activity store.
// Replays of an event ID are absorbed by the store.
type IngestHandler struct {
	store  IngestStore
	logger *slog.Logger
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(store IngestStore, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{store: store, logger: logger}
}

// Handle implements Handler. Unknown event types are acknowledged and ignored.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypePracticeLogged:
		return h.practice(ctx, msg)
	case events.TypeUserLoggedIn:
		return h.login(ctx, msg)
	default:
		h.logger.Debug("ignoring event", "event_type", msg.EventType, "topic", msg.Topic)
		return nil
	}
}

func (h *IngestHandler) practice(ctx context.Context, msg Message) error {
	var evt events.PracticeLogged
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	source := activity.SourceType(evt.Source)
	if evt.EventID == "" || evt.UserID == "" || evt.PerformedAt.IsZero() || !source.IsPractice() {
		return fmt.Errorf("%w: practice event %q missing id, user, time or practice source", ErrMalformed, evt.EventID)
	}

	inserted, err := h.store.InsertActivity(ctx, activity.Record{
		ID:          evt.EventID,
		UserID:      evt.UserID,
		ItemID:      evt.ItemID,
		ItemName:    evt.ItemName,
		PerformedAt: evt.PerformedAt.UTC(),
		Source:      source,
	})
	if err != nil {
		return err
	}
	if !inserted {
		recordDuplicate(msg.EventType)
	}
	return nil
}

func (h *IngestHandler) login(ctx context.Context, msg Message) error {
	var evt events.UserLoggedIn
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.EventID == "" || evt.UserID == "" || evt.LoggedInAt.IsZero() {
		return fmt.Errorf("%w: login event %q missing id, user or time", ErrMalformed, evt.EventID)
	}

	if err := h.store.UpsertUser(ctx, notify.Recipient{
		UserID:   evt.UserID,
		Email:    evt.Email,
		Name:     evt.Name,
		Timezone: evt.Timezone,
	}); err != nil {
		return err
	}

	inserted, err := h.store.InsertActivity(ctx, activity.Record{
		ID:          evt.EventID,
		UserID:      evt.UserID,
		PerformedAt: evt.LoggedInAt.UTC(),
		Source:      activity.SourceLogin,
	})
	if err != nil {
		return err
	}
	if !inserted {
		recordDuplicate(msg.EventType)
	}
	return nil
}
