package notify

import (
	"time"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/datekey"
	"example.com/practice/internal/streak"
)

const (
	// DefaultReminderWindow is how close to the configured time a reminder may fire.
	DefaultReminderWindow = 5 * time.Minute
	// DefaultAnnouncementMaxAge bounds how long after publication an announcement is sent.
	DefaultAnnouncementMaxAge = 7 * 24 * time.Hour
	// ReengagementGapDays is the lapse after which a lapsed user is nudged.
	ReengagementGapDays = 7
	// StreakWarningMinimum is the smallest streak worth a warning.
	StreakWarningMinimum = 3
)

var (
	// LoginCelebrations are the login streak lengths that earn a celebration.
	LoginCelebrations = []int{7, 30, 60, 90, 180, 365}
	// ActivityCelebrations are the practice streak lengths that earn a celebration.
	ActivityCelebrations = []int{7, 14, 30, 60, 90, 180, 365}
	// SessionMilestones are the cumulative session counts that earn a milestone.
	SessionMilestones = []int{10, 25, 50, 100, 250, 500, 1000}
)

// Evaluator is a pure eligibility predicate for one kind.
type Evaluator interface {
	Kind() Kind
	Evaluate(snap Snapshot, now time.Time) []Trigger
}

// Config tunes the evaluators.
type Config struct {
	ReminderWindow     time.Duration
	AnnouncementMaxAge time.Duration
}

// DefaultEvaluators returns one evaluator per kind.
func DefaultEvaluators(cfg Config) []Evaluator {
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = DefaultReminderWindow
	}
	if cfg.AnnouncementMaxAge <= 0 {
		cfg.AnnouncementMaxAge = DefaultAnnouncementMaxAge
	}
	return []Evaluator{
		DailyReminder{Window: cfg.ReminderWindow},
		LoginStreak{},
		ActivityStreak{},
		ProgressMilestone{},
		FeatureAnnouncement{MaxAge: cfg.AnnouncementMaxAge},
	}
}

// DailyReminder fires near the configured local time on configured weekdays,
// provided nothing has been practiced since local midnight.
type DailyReminder struct {
	Window time.Duration
}

func (DailyReminder) Kind() Kind { return KindDailyReminder }

func (e DailyReminder) Evaluate(snap Snapshot, now time.Time) []Trigger {
	if snap.Preferences == nil {
		return nil
	}
	schedule := snap.Preferences.Reminder
	target, err := schedule.MinuteOfDay()
	if err != nil {
		return nil
	}

	local := datekey.LocalTime(now, snap.OffsetMinutes)
	current := local.Hour()*60 + local.Minute()

	// The nearest slot may fall on the previous or next local day.
	slot := datekey.Today(snap.OffsetMinutes, now)
	diff := current - target
	switch {
	case diff > 12*60:
		diff -= 24 * 60
		slot = slot.AddDays(1)
	case diff < -12*60:
		diff += 24 * 60
		slot = slot.AddDays(-1)
	}
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Minute > e.Window {
		return nil
	}
	if !schedule.OnDay(slot.Weekday()) {
		return nil
	}

	for _, r := range snap.Practice {
		if r.Source.IsPractice() && datekey.FromTime(r.PerformedAt, snap.OffsetMinutes) == slot {
			return nil
		}
	}
	return []Trigger{ReminderTrigger(slot)}
}

// LoginStreak warns, celebrates or re-engages based on login days.
// The three outcomes are mutually exclusive.
type LoginStreak struct{}

func (LoginStreak) Kind() Kind { return KindLoginStreak }

func (LoginStreak) Evaluate(snap Snapshot, now time.Time) []Trigger {
	keys := datekey.UniqueSorted(snap.Logins, snap.OffsetMinutes)
	if len(keys) == 0 {
		return nil
	}
	today := datekey.Today(snap.OffsetMinutes, now)

	if t, ok := streakTrigger(KindLoginStreak, keys, today, LoginCelebrations); ok {
		return []Trigger{t}
	}

	status := streak.Compute(keys, today)
	if status.Current == 0 && datekey.DaysBetween(today, keys[0]) >= ReengagementGapDays {
		return []Trigger{ReengagementTrigger(keys[0])}
	}
	return nil
}

// ActivityStreak warns or celebrates based on practice days.
type ActivityStreak struct{}

func (ActivityStreak) Kind() Kind { return KindActivityStreak }

func (ActivityStreak) Evaluate(snap Snapshot, now time.Time) []Trigger {
	practice := activity.Filter(snap.Practice, activity.PracticeSources...)
	keys := activity.DayKeys(practice, snap.OffsetMinutes)
	if len(keys) == 0 {
		return nil
	}
	if t, ok := streakTrigger(KindActivityStreak, keys, datekey.Today(snap.OffsetMinutes, now), ActivityCelebrations); ok {
		return []Trigger{t}
	}
	return nil
}

func streakTrigger(kind Kind, keys []datekey.Key, today datekey.Key, celebrations []int) (Trigger, bool) {
	status := streak.Compute(keys, today)
	start, ok := streak.Start(keys, today)
	if !ok {
		return Trigger{}, false
	}
	switch {
	case status.AtRisk && status.Current >= StreakWarningMinimum:
		return StreakTrigger(kind, VariantWarning, status.Current, start), true
	case status.ActiveToday && contains(celebrations, status.Current):
		return StreakTrigger(kind, VariantCelebration, status.Current, start), true
	}
	return Trigger{}, false
}

// ProgressMilestone fires when the live session count equals a milestone, and on
// the local day a user's first pose, series or sequence is recorded.
//
// Equality, not threshold crossing: a count that jumps past a milestone between
// passes never fires for that milestone.
type ProgressMilestone struct{}

func (ProgressMilestone) Kind() Kind { return KindProgressMilestone }

func (ProgressMilestone) Evaluate(snap Snapshot, now time.Time) []Trigger {
	var triggers []Trigger
	if contains(SessionMilestones, snap.SessionCount) {
		triggers = append(triggers, MilestoneTrigger(snap.SessionCount))
	}

	today := datekey.Today(snap.OffsetMinutes, now)
	for _, src := range activity.PracticeSources {
		if snap.SourceCounts[src] != 1 {
			continue
		}
		for _, r := range snap.Practice {
			if r.Source == src && datekey.FromTime(r.PerformedAt, snap.OffsetMinutes) == today {
				triggers = append(triggers, FirstTimeTrigger(src))
				break
			}
		}
	}
	return triggers
}

// FeatureAnnouncement offers active announcements published within MaxAge.
type FeatureAnnouncement struct {
	MaxAge time.Duration
}

func (FeatureAnnouncement) Kind() Kind { return KindFeatureAnnouncement }

func (e FeatureAnnouncement) Evaluate(snap Snapshot, now time.Time) []Trigger {
	var triggers []Trigger
	for _, a := range snap.Announcements {
		if !a.Active || a.PublishedAt.After(now) || now.Sub(a.PublishedAt) > e.MaxAge {
			continue
		}
		triggers = append(triggers, AnnouncementTrigger(a.ID))
	}
	return triggers
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
