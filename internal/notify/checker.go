package notify

import (
	"context"
	"log/slog"
	"time"
)

// LogEntry records one delivered event. Entries are never updated or deleted.
type LogEntry struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Trigger Trigger   `json:"trigger"`
	SentVia []Channel `json:"sent_via"`
	SentAt  time.Time `json:"sent_at"`
}

// Kind returns the entry's notification kind.
func (e LogEntry) Kind() Kind { return e.Trigger.Kind }

// DedupLog is the append-only delivery log.
type DedupLog interface {
	AlreadySent(ctx context.Context, userID string, trigger Trigger) (bool, error)
	Append(ctx context.Context, entry LogEntry) error
}

// Decision is an eligible, not-yet-delivered event for one user.
type Decision struct {
	Recipient Recipient
	Trigger   Trigger
	Channels  []Channel
	Message   Message
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger overrides the logger used for fallback reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithEvaluators replaces the default evaluator set.
func WithEvaluators(evaluators ...Evaluator) Option {
	return func(c *Checker) {
		c.evaluators = evaluators
	}
}

// Checker runs every evaluator and filters by preferences and the dedup log.
type Checker struct {
	evaluators []Evaluator
	log        DedupLog
	logger     *slog.Logger
}

// NewChecker constructs a Checker with the default evaluators.
func NewChecker(log DedupLog, opts ...Option) *Checker {
	c := &Checker{
		evaluators: DefaultEvaluators(Config{}),
		log:        log,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the decisions for snap at now. Evaluating twice with no log
// write in between yields the same decisions.
func (c *Checker) Check(ctx context.Context, snap Snapshot, now time.Time) []Decision {
	var decisions []Decision
	for _, ev := range c.evaluators {
		channels := Channels(snap.Preferences, ev.Kind())
		if len(channels) == 0 {
			continue
		}
		for _, trigger := range ev.Evaluate(snap, now) {
			if c.alreadySent(ctx, snap.Recipient.UserID, trigger) {
				continue
			}
			decisions = append(decisions, Decision{
				Recipient: snap.Recipient,
				Trigger:   trigger,
				Channels:  channels,
				Message:   Render(trigger, snap),
			})
		}
	}
	return decisions
}

func (c *Checker) alreadySent(ctx context.Context, userID string, trigger Trigger) bool {
	return Guard(ctx, c.logger.With("user_id", userID, "kind", string(trigger.Kind)), "already_sent", AlreadySentPolicy,
		func(ctx context.Context) (bool, error) {
			return c.log.AlreadySent(ctx, userID, trigger)
		})
}
