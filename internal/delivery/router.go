// Package delivery hands rendered notifications to the push and email pipelines.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"example.com/practice/internal/clock"
	"example.com/practice/internal/events"
	"example.com/practice/internal/notify"
)

var (
	// ErrNoPublisher is returned for channels without a configured publisher.
	ErrNoPublisher = errors.New("no publisher for channel")
	// ErrNoAddress is returned when an email is requested for a user without one.
	ErrNoAddress = errors.New("recipient has no email address")
)

// Publisher delivers a notification request on one channel.
type Publisher interface {
	Channel() notify.Channel
	Publish(ctx context.Context, req events.NotificationRequested) error
}

// Router sends each message through the publisher registered for its channel.
type Router struct {
	publishers map[notify.Channel]Publisher
	clock      clock.Clock
}

// NewRouter constructs a Router over publishers.
func NewRouter(c clock.Clock, publishers ...Publisher) *Router {
	r := &Router{publishers: make(map[notify.Channel]Publisher, len(publishers)), clock: c}
	for _, p := range publishers {
		r.publishers[p.Channel()] = p
	}
	return r
}

// Send implements batch.Sender.
func (r *Router) Send(ctx context.Context, recipient notify.Recipient, channel notify.Channel, msg notify.Message) error {
	p, ok := r.publishers[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPublisher, channel)
	}
	return p.Publish(ctx, events.NotificationRequested{
		NotificationID: uuid.NewString(),
		UserID:         recipient.UserID,
		Email:          recipient.Email,
		Name:           recipient.Name,
		Channel:        string(channel),
		Kind:           string(msg.Kind),
		Variant:        string(msg.Variant),
		Title:          msg.Title,
		Body:           msg.Body,
		RequestedAt:    r.clock.Now(),
	})
}
