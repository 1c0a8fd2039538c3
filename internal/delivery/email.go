package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"example.com/practice/internal/events"
	"example.com/practice/internal/notify"
)

const publishTimeout = 5 * time.Second

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EmailPublisher queues email notifications on a RabbitMQ exchange for the mailer.
type EmailPublisher struct {
	channel    amqpPublisher
	exchange   string
	routingKey string
}

// NewEmailPublisher constructs an EmailPublisher. ch is usually an *amqp.Channel.
func NewEmailPublisher(ch amqpPublisher, exchange, routingKey string) *EmailPublisher {
	return &EmailPublisher{channel: ch, exchange: exchange, routingKey: routingKey}
}

// Publish implements Publisher.
func (p *EmailPublisher) Publish(ctx context.Context, req events.NotificationRequested) error {
	if req.Email == "" {
		return fmt.Errorf("user %s: %w", req.UserID, ErrNoAddress)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode email notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    req.NotificationID,
		Type:         events.TypeNotificationRequested,
		Timestamp:    req.RequestedAt,
		Body:         body,
		Headers:      amqp.Table{"kind": req.Kind},
	})
	if err != nil {
		return fmt.Errorf("publish email notification to %s: %w", p.exchange, err)
	}
	return nil
}

// Channel implements Publisher.
func (p *EmailPublisher) Channel() notify.Channel { return notify.ChannelEmail }
