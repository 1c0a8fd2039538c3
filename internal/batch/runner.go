// Package batch runs the notification pass over the whole user population.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/clock"
	"example.com/practice/internal/datekey"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/streak"
)

const (
	defaultWorkers  = 4
	defaultPageSize = 500
	defaultLockTTL  = 55 * time.Minute
	// DefaultHistory is the initial activity window loaded per user. It is
	// widened while a live streak still reaches its oldest day.
	DefaultHistory = 2 * 365 * 24 * time.Hour
	maxHistory     = 30 * 365 * 24 * time.Hour
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithWorkers sets the number of users processed concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithPageSize sets how many users are read per store round trip.
func WithPageSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithLimiter paces channel sends.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithLocker makes each pass take an hourly lock first.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithEvaluatorConfig tunes the default evaluators.
func WithEvaluatorConfig(cfg notify.Config) Option {
	return func(r *Runner) {
		r.evalConfig = cfg
	}
}

// WithChecker replaces the eligibility checker.
func WithChecker(c *notify.Checker) Option {
	return func(r *Runner) {
		r.checker = c
	}
}

// WithHistory bounds how far back activity is loaded.
func WithHistory(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.history = d
		}
	}
}

// Runner evaluates, delivers and logs notifications for every user.
type Runner struct {
	store      Store
	aggregator *activity.Aggregator
	log        notify.DedupLog
	sender     Sender
	checker    *notify.Checker
	evalConfig notify.Config
	clock      clock.Clock
	limiter    *rate.Limiter
	locker     Locker
	lockTTL    time.Duration
	workers    int
	pageSize   int
	history    time.Duration
	logger     *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(store Store, log notify.DedupLog, sender Sender, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		aggregator: activity.NewAggregator(store),
		log:        log,
		sender:     sender,
		clock:      clock.System{},
		lockTTL:    defaultLockTTL,
		workers:    defaultWorkers,
		pageSize:   defaultPageSize,
		history:    DefaultHistory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.checker == nil {
		r.checker = notify.NewChecker(log,
			notify.WithLogger(r.logger),
			notify.WithEvaluators(notify.DefaultEvaluators(r.evalConfig)...))
	}
	return r
}

// Start runs a pass immediately and then every interval until ctx is done.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	r.logger.Info("notification scheduler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("notification pass failed", "run_id", report.RunID, "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("notification scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one pass. A returned error means the population could not
// be fully enumerated; the report still covers every user that was processed.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	now := r.clock.Now()
	report := newReport(uuid.NewString(), now)
	logger := r.logger.With("run_id", report.RunID)
	start := time.Now()

	var completed bool
	if r.locker != nil {
		key := lockKey(now)
		acquired, err := r.locker.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			runsCounter.WithLabelValues("failed").Inc()
			return report, fmt.Errorf("acquire run lock %s: %w", key, err)
		}
		if !acquired {
			report.Skipped = true
			runsCounter.WithLabelValues("skipped").Inc()
			logger.Info("notification pass skipped, lock held elsewhere", "lock", key)
			return report, nil
		}
		// A completed pass keeps the lock until it expires so the hour runs once.
		// A failed pass releases it for a retry.
		defer func() {
			if completed {
				return
			}
			if err := r.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
				logger.Warn("release run lock", "lock", key, "error", err)
			}
		}()
	}

	announcements := notify.Guard(ctx, logger, "announcements", notify.Zero[[]notify.Announcement](),
		func(ctx context.Context) ([]notify.Announcement, error) {
			return r.store.ActiveAnnouncements(ctx, now)
		})

	users := make(chan notify.Recipient)
	results := make(chan userResult)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range users {
				results <- r.processUser(ctx, logger, u, announcements, now)
			}
		}()
	}

	var feedErr error
	go func() {
		defer close(users)
		feedErr = r.feed(ctx, users)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			userErrorsCounter.Inc()
			logger.Error("user evaluation aborted", "user_id", res.userID, "error", res.err)
		}
		report.merge(res)
	}

	report.Duration = time.Since(start)
	runDuration.Observe(report.Duration.Seconds())

	if feedErr != nil {
		runsCounter.WithLabelValues("failed").Inc()
		return report, feedErr
	}
	completed = true
	runsCounter.WithLabelValues("completed").Inc()
	logger.Info("notification pass complete", "summary", report.Summary())
	return report, nil
}

func (r *Runner) feed(ctx context.Context, users chan<- notify.Recipient) error {
	after := ""
	for {
		page, err := r.store.ListUsers(ctx, after, r.pageSize)
		if err != nil {
			return fmt.Errorf("list users after %q: %w", after, err)
		}
		for _, u := range page {
			select {
			case users <- u:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(page) < r.pageSize {
			return nil
		}
		after = page[len(page)-1].UserID
	}
}

func (r *Runner) processUser(ctx context.Context, logger *slog.Logger, u notify.Recipient, announcements []notify.Announcement, now time.Time) (res userResult) {
	res = userResult{userID: u.UserID, kinds: make(map[notify.Kind]Counters)}
	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("panic: %v", p)
		}
	}()

	logger = logger.With("user_id", u.UserID)
	prefs := notify.Guard(ctx, logger, "preferences", notify.PreferencesPolicy,
		func(ctx context.Context) (*notify.Preferences, error) {
			return r.store.Preferences(ctx, u.UserID)
		})
	if !anyEnabled(prefs) {
		return res
	}

	snap := r.snapshot(ctx, logger, u, prefs, announcements, now)
	for _, d := range r.checker.Check(ctx, snap, now) {
		kind := d.Trigger.Kind
		c := res.kinds[kind]
		c.Checked++

		delivered := r.deliver(ctx, logger, d)
		if len(delivered) == 0 {
			c.Failed++
			notificationsCounter.WithLabelValues(string(kind), "failed").Inc()
			res.kinds[kind] = c
			continue
		}
		c.Sent++
		notificationsCounter.WithLabelValues(string(kind), "sent").Inc()
		res.kinds[kind] = c

		entry := notify.LogEntry{
			ID:      uuid.NewString(),
			UserID:  u.UserID,
			Trigger: d.Trigger,
			SentVia: delivered,
			SentAt:  r.clock.Now(),
		}
		if err := r.log.Append(ctx, entry); err != nil {
			res.logErrors++
			logErrorsCounter.Inc()
			logger.Error("record delivered notification", "kind", string(kind), "trigger", d.Trigger.Key(), "error", err)
		}
	}
	return res
}

func (r *Runner) snapshot(ctx context.Context, logger *slog.Logger, u notify.Recipient, prefs *notify.Preferences, announcements []notify.Announcement, now time.Time) notify.Snapshot {
	offset := datekey.LoadOffset(u.Timezone, now)
	records := notify.Guard(ctx, logger, "activity", notify.Zero[[]activity.Record](),
		func(ctx context.Context) ([]activity.Record, error) {
			return r.loadActivity(ctx, u.UserID, offset, now)
		})
	sessions := notify.Guard(ctx, logger, "session_count", notify.Zero[int](),
		func(ctx context.Context) (int, error) {
			return r.store.SessionCount(ctx, u.UserID)
		})
	sources := notify.Guard(ctx, logger, "source_counts", notify.Zero[map[activity.SourceType]int](),
		func(ctx context.Context) (map[activity.SourceType]int, error) {
			return r.store.SourceCounts(ctx, u.UserID)
		})

	return notify.Snapshot{
		Recipient:     u,
		Preferences:   prefs,
		OffsetMinutes: offset,
		Logins:        activity.Instants(activity.Filter(records, activity.SourceLogin)),
		Practice:      activity.Filter(records, activity.PracticeSources...),
		SessionCount:  sessions,
		SourceCounts:  sources,
		Announcements: announcements,
	}
}

// loadActivity fetches the history window, doubling it while the live login or
// practice streak starts at the window's first day, so streak values are never
// truncated by the window.
func (r *Runner) loadActivity(ctx context.Context, userID string, offset int, now time.Time) ([]activity.Record, error) {
	window := r.history
	for {
		since := now.Add(-window)
		records, err := r.aggregator.Fetch(ctx, userID, since, true)
		if err != nil {
			return nil, err
		}
		if window >= maxHistory || !streakReaches(records, datekey.FromTime(since, offset), offset, now) {
			return records, nil
		}
		window *= 2
	}
}

func streakReaches(records []activity.Record, edge datekey.Key, offset int, now time.Time) bool {
	today := datekey.Today(offset, now)
	for _, sources := range [][]activity.SourceType{{activity.SourceLogin}, activity.PracticeSources} {
		keys := activity.DayKeys(activity.Filter(records, sources...), offset)
		if start, ok := streak.Start(keys, today); ok && datekey.DaysBetween(start, edge) <= 1 {
			return true
		}
	}
	return false
}

func (r *Runner) deliver(ctx context.Context, logger *slog.Logger, d notify.Decision) []notify.Channel {
	var delivered []notify.Channel
	for _, ch := range d.Channels {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				logger.Warn("delivery pacing interrupted", "channel", string(ch), "error", err)
				break
			}
		}
		if err := r.sender.Send(ctx, d.Recipient, ch, d.Message); err != nil {
			logger.Warn("delivery failed", "kind", string(d.Trigger.Kind), "channel", string(ch), "error", err)
			continue
		}
		delivered = append(delivered, ch)
	}
	return delivered
}

func anyEnabled(prefs *notify.Preferences) bool {
	for _, k := range notify.Kinds {
		if len(notify.Channels(prefs, k)) > 0 {
			return true
		}
	}
	return false
}

func lockKey(now time.Time) string {
	return "practice-engine:notifications:" + now.UTC().Format("2006-01-02T15")
}
