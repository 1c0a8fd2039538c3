// Package scheduler assembles a batch.Runner from configuration: Kafka push and
// AMQP email delivery, the Redis run lock and the delivery rate limiter.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"example.com/practice/internal/batch"
	"example.com/practice/internal/clock"
	"example.com/practice/internal/config"
	"example.com/practice/internal/delivery"
	"example.com/practice/internal/lock"
	"example.com/practice/internal/notify"
)

// Store is everything a pass reads and writes.
type Store interface {
	batch.Store
	notify.DedupLog
}

// Runtime owns the runner and the connections behind it.
type Runtime struct {
	Runner  *batch.Runner
	closers []func() error
}

// Close releases every connection opened by Build, newest first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires a Runner for cfg. It fails when no delivery channel is configured
// or a broker cannot be reached.
func Build(cfg config.Config, store Store, logger *slog.Logger) (*Runtime, error) {
	if !cfg.PushEnabled() && !cfg.EmailEnabled() {
		return nil, config.ErrNoDeliveryChannel
	}

	rt := &Runtime{}
	var publishers []delivery.Publisher

	if cfg.PushEnabled() {
		producer := delivery.NewKafkaProducer(cfg.KafkaBrokers)
		rt.closers = append(rt.closers, producer.Close)
		publishers = append(publishers, delivery.NewPushPublisher(producer, cfg.PushTopic))
		logger.Info("push delivery enabled", "topic", cfg.PushTopic, "brokers", cfg.KafkaBrokers)
	}

	if cfg.EmailEnabled() {
		ch, err := dialEmail(rt, cfg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		publishers = append(publishers, delivery.NewEmailPublisher(ch, cfg.EmailExchange, cfg.EmailRoutingKey))
		logger.Info("email delivery enabled", "exchange", cfg.EmailExchange, "routing_key", cfg.EmailRoutingKey)
	}

	opts := []batch.Option{
		batch.WithLogger(logger),
		batch.WithWorkers(cfg.BatchWorkers),
		batch.WithPageSize(cfg.BatchPageSize),
		batch.WithEvaluatorConfig(notify.Config{
			ReminderWindow:     cfg.ReminderWindow,
			AnnouncementMaxAge: cfg.AnnouncementMaxAge,
		}),
	}
	if limiter := Limiter(cfg.DeliveryRatePerSecond); limiter != nil {
		opts = append(opts, batch.WithLimiter(limiter))
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		rt.closers = append(rt.closers, client.Close)
		opts = append(opts, batch.WithLocker(lock.NewRedis(client), cfg.LockTTL))
		logger.Info("run lock enabled", "redis", cfg.RedisAddr, "ttl", cfg.LockTTL)
	}

	router := delivery.NewRouter(clock.System{}, publishers...)
	rt.Runner = batch.NewRunner(store, store, router, opts...)
	return rt, nil
}

// Limiter paces deliveries at perSecond with a one-second burst. A
// non-positive rate disables pacing.
func Limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func dialEmail(rt *Runtime, cfg config.Config) (*amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	rt.closers = append(rt.closers, conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	rt.closers = append(rt.closers, ch.Close)

	if err := ch.ExchangeDeclare(cfg.EmailExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.EmailExchange, err)
	}
	return ch, nil
}
