package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"example.com/practice/internal/events"
	"example.com/practice/internal/notify"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// PushPublisher hands push notifications to the device gateway over Kafka.
// Messages are keyed by user so one user's notifications stay ordered.
type PushPublisher struct {
	writer messageWriter
	topic  string
}

// NewPushPublisher constructs a PushPublisher.
func NewPushPublisher(writer messageWriter, topic string) *PushPublisher {
	return &PushPublisher{writer: writer, topic: topic}
}

// Publish implements Publisher.
func (p *PushPublisher) Publish(ctx context.Context, req events.NotificationRequested) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode push notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(req.UserID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeNotificationRequested)},
			{Key: "kind", Value: []byte(req.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish push notification to %s: %w", p.topic, err)
	}
	return nil
}

// Channel implements Publisher.
func (p *PushPublisher) Channel() notify.Channel { return notify.ChannelPush }
