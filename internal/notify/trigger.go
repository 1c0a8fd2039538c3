// Package notify decides which notification events a user is currently eligible for.
//
// Each Evaluator is a pure predicate over a Snapshot and "now". The Checker gates
// evaluator output on the user's preferences and on the dedup log, so that each
// distinct Trigger is delivered at most once.
package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/datekey"
)

// Kind names a notification family.
type Kind string

const (
	KindDailyReminder       Kind = "daily_reminder"
	KindLoginStreak         Kind = "login_streak"
	KindActivityStreak      Kind = "activity_streak"
	KindProgressMilestone   Kind = "progress_milestone"
	KindFeatureAnnouncement Kind = "feature_announcement"
)

// Kinds lists every kind in evaluation order.
var Kinds = []Kind{
	KindDailyReminder,
	KindLoginStreak,
	KindActivityStreak,
	KindProgressMilestone,
	KindFeatureAnnouncement,
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// Variant distinguishes events within a kind.
type Variant string

const (
	VariantReminder     Variant = "reminder"
	VariantWarning      Variant = "warning"
	VariantCelebration  Variant = "celebration"
	VariantReengagement Variant = "reengagement"
	VariantMilestone    Variant = "milestone"
	VariantFirstTime    Variant = "first_time"
	VariantAnnouncement Variant = "announcement"
)

var allowedVariants = map[Kind][]Variant{
	KindDailyReminder:       {VariantReminder},
	KindLoginStreak:         {VariantWarning, VariantCelebration, VariantReengagement},
	KindActivityStreak:      {VariantWarning, VariantCelebration},
	KindProgressMilestone:   {VariantMilestone, VariantFirstTime},
	KindFeatureAnnouncement: {VariantAnnouncement},
}

// dayKeyed variants carry a day key as Subject.
var dayKeyed = map[Variant]bool{
	VariantReminder:     true,
	VariantWarning:      true,
	VariantCelebration:  true,
	VariantReengagement: true,
}

// ErrInvalidTrigger is returned for triggers outside the closed set of shapes.
var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger identifies one logical notification event. Two triggers describe the
// same event iff they are equal, so Trigger must stay comparable.
//
//	daily_reminder        reminder      Subject=local day
//	login_streak          warning       Value=streak  Subject=first day of the run
//	login_streak          celebration   Value=streak  Subject=first day of the run
//	login_streak          reengagement                Subject=last login day
//	activity_streak       warning       Value=streak  Subject=first day of the run
//	activity_streak       celebration   Value=streak  Subject=first day of the run
//	progress_milestone    milestone     Value=session count
//	progress_milestone    first_time    Subject=practice source
//	feature_announcement  announcement  Subject=announcement id
type Trigger struct {
	Kind    Kind    `json:"kind"`
	Variant Variant `json:"variant"`
	Value   int     `json:"value,omitempty"`
	Subject string  `json:"subject,omitempty"`
}

// ReminderTrigger is the daily reminder for one local day.
func ReminderTrigger(day datekey.Key) Trigger {
	return Trigger{Kind: KindDailyReminder, Variant: VariantReminder, Subject: day.String()}
}

// StreakTrigger is a warning or celebration for the run that started on start.
func StreakTrigger(kind Kind, variant Variant, streak int, start datekey.Key) Trigger {
	return Trigger{Kind: kind, Variant: variant, Value: streak, Subject: start.String()}
}

// ReengagementTrigger targets the lapse following lastSeen.
func ReengagementTrigger(lastSeen datekey.Key) Trigger {
	return Trigger{Kind: KindLoginStreak, Variant: VariantReengagement, Subject: lastSeen.String()}
}

// MilestoneTrigger fires when the session counter equals count.
func MilestoneTrigger(count int) Trigger {
	return Trigger{Kind: KindProgressMilestone, Variant: VariantMilestone, Value: count}
}

// FirstTimeTrigger fires on the first practice of a source.
func FirstTimeTrigger(source activity.SourceType) Trigger {
	return Trigger{Kind: KindProgressMilestone, Variant: VariantFirstTime, Subject: string(source)}
}

// AnnouncementTrigger delivers announcement id.
func AnnouncementTrigger(id string) Trigger {
	return Trigger{Kind: KindFeatureAnnouncement, Variant: VariantAnnouncement, Subject: id}
}

// Key is the canonical string form used as the store's uniqueness key.
func (t Trigger) Key() string {
	return strings.Join([]string{string(t.Kind), string(t.Variant), strconv.Itoa(t.Value), t.Subject}, "|")
}

// Validate rejects kind/variant combinations outside the closed set.
func (t Trigger) Validate() error {
	variants, ok := allowedVariants[t.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
	allowed := false
	for _, v := range variants {
		if v == t.Variant {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: variant %q not allowed for %s", ErrInvalidTrigger, t.Variant, t.Kind)
	}
	if dayKeyed[t.Variant] {
		if _, err := datekey.Parse(t.Subject); err != nil {
			return fmt.Errorf("%w: %s subject: %v", ErrInvalidTrigger, t.Variant, err)
		}
	}
	return nil
}

// ParseTriggerKey reverses Key.
func ParseTriggerKey(key string) (Trigger, error) {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return Trigger{}, fmt.Errorf("%w: malformed key %q", ErrInvalidTrigger, key)
	}
	value, err := strconv.Atoi(parts[2])
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: malformed value in %q", ErrInvalidTrigger, key)
	}
	t := Trigger{Kind: Kind(parts[0]), Variant: Variant(parts[1]), Value: value, Subject: parts[3]}
	return t, t.Validate()
}
