// Package domain answers dashboard queries about a user's practice.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/clock"
	"example.com/practice/internal/datekey"
	"example.com/practice/internal/goal"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/streak"
)

var (
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidOffset is returned for timezone offsets outside ±14h.
	ErrInvalidOffset = errors.New("timezone offset out of range")
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// Repository captures the reads the dashboard needs.
type Repository interface {
	activity.Source
	User(ctx context.Context, userID string) (notify.Recipient, bool, error)
	NotificationLog(ctx context.Context, userID string, cursor *Cursor, limit int) ([]notify.LogEntry, *Cursor, error)
}

// Cursor models the notification log pagination token.
type Cursor struct {
	SentAt time.Time
	ID     string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the logger used for store fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates dashboard queries.
type Service struct {
	repo       Repository
	aggregator *activity.Aggregator
	clock      clock.Clock
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		aggregator: activity.NewAggregator(repo),
		clock:      clock.System{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary is the dashboard headline for one user.
type Summary struct {
	UserID        string        `json:"user_id"`
	Today         datekey.Key   `json:"today"`
	OffsetMinutes int           `json:"tz_offset"`
	Practice      streak.Status `json:"practice"`
	Longest       int           `json:"longest_streak"`
	Login         streak.Status `json:"login"`
	Goal          goal.Tier     `json:"goal"`
}

// Summary computes the practice streak, longest streak and goal tier. A nil
// offset falls back to the user's stored timezone.
func (s *Service) Summary(ctx context.Context, userID string, offset *int) (Summary, error) {
	now := s.clock.Now()
	off, err := s.resolveOffset(ctx, userID, offset, now)
	if err != nil {
		return Summary{}, err
	}

	records := s.records(ctx, userID, time.Time{}, true)
	practice := activity.Filter(records, activity.PracticeSources...)
	logins := activity.Filter(records, activity.SourceLogin)

	status, longest := streak.FromInstants(activity.Instants(practice), off, now)
	loginStatus, _ := streak.FromInstants(activity.Instants(logins), off, now)

	return Summary{
		UserID:        userID,
		Today:         datekey.Today(off, now),
		OffsetMinutes: off,
		Practice:      status,
		Longest:       longest,
		Login:         loginStatus,
		Goal:          goal.ForStreak(status.Current),
	}, nil
}

// History returns distinct practice days per local month for the trailing year.
func (s *Service) History(ctx context.Context, userID string, offset *int) ([]activity.MonthCount, error) {
	now := s.clock.Now()
	off, err := s.resolveOffset(ctx, userID, offset, now)
	if err != nil {
		return nil, err
	}
	// One extra day covers local month starts east of UTC.
	since := now.AddDate(0, -activity.HistoryMonths, -1)
	return activity.MonthlyHistory(s.records(ctx, userID, since, false), off, now), nil
}

// MostCommon ranks the most practiced items of each practice source over the trailing year.
func (s *Service) MostCommon(ctx context.Context, userID string, limit int) (map[activity.SourceType][]activity.Ranked, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	records := s.records(ctx, userID, now.AddDate(0, -activity.HistoryMonths, 0), false)

	out := make(map[activity.SourceType][]activity.Ranked, len(activity.PracticeSources))
	for _, src := range activity.PracticeSources {
		out[src] = activity.MostCommon(records, src, now, limit)
	}
	return out, nil
}

// NotificationLog lists delivered notifications, most recent first.
func (s *Service) NotificationLog(ctx context.Context, userID string, cursor *Cursor, limit int) ([]notify.LogEntry, *Cursor, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return s.repo.NotificationLog(ctx, userID, cursor, limit)
}

func (s *Service) user(ctx context.Context, userID string) (notify.Recipient, error) {
	u, ok, err := s.repo.User(ctx, userID)
	if err != nil {
		return notify.Recipient{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	if !ok {
		return notify.Recipient{}, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) resolveOffset(ctx context.Context, userID string, offset *int, now time.Time) (int, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if offset == nil {
		return datekey.LoadOffset(u.Timezone, now), nil
	}
	if *offset < -datekey.MaxOffsetMinutes || *offset > datekey.MaxOffsetMinutes {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, *offset)
	}
	return *offset, nil
}

// records loads activity, resolving read failures to an empty history.
func (s *Service) records(ctx context.Context, userID string, since time.Time, includeLogins bool) []activity.Record {
	return notify.Guard(ctx, s.logger.With("user_id", userID), "activity", notify.Zero[[]activity.Record](),
		func(ctx context.Context) ([]activity.Record, error) {
			return s.aggregator.Fetch(ctx, userID, since, includeLogins)
		})
}
