package notify

import (
	"fmt"
	"time"
)

// Preferences are the user's notification toggles. A nil *Preferences means
// no record exists and is treated exactly like DisabledPreferences.
type Preferences struct {
	InApp    bool             `json:"in_app"`
	Email    bool             `json:"email"`
	Kinds    map[Kind]bool    `json:"kinds"`
	Reminder ReminderSchedule `json:"reminder"`
}

// ReminderSchedule configures the daily practice reminder.
type ReminderSchedule struct {
	Days []time.Weekday `json:"days"`
	Time string         `json:"time"` // HH:MM, user's local clock
}

// DisabledPreferences is the default for users without a preference record.
func DisabledPreferences() Preferences {
	return Preferences{Kinds: map[Kind]bool{}}
}

// Enabled reports whether kind is switched on at the sub-preference level.
func (p *Preferences) Enabled(kind Kind) bool {
	if p == nil {
		return false
	}
	return p.Kinds[kind]
}

// Channels returns the channels kind may be delivered on. A master switch that
// is off suppresses every kind beneath it.
func Channels(p *Preferences, kind Kind) []Channel {
	if !p.Enabled(kind) {
		return nil
	}
	var channels []Channel
	if p.InApp {
		channels = append(channels, ChannelPush)
	}
	if p.Email {
		channels = append(channels, ChannelEmail)
	}
	return channels
}

// Validate rejects unknown kinds and an unparseable reminder time while the
// daily reminder is switched on.
func (p Preferences) Validate() error {
	for k := range p.Kinds {
		if !k.Valid() {
			return fmt.Errorf("unknown notification kind %q", k)
		}
	}
	for _, d := range p.Reminder.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("reminder day %d out of range", d)
		}
	}
	if p.Kinds[KindDailyReminder] {
		if _, err := p.Reminder.MinuteOfDay(); err != nil {
			return err
		}
	}
	return nil
}

// OnDay reports whether the reminder is configured for weekday.
func (r ReminderSchedule) OnDay(weekday time.Weekday) bool {
	for _, d := range r.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// MinuteOfDay parses Time into minutes after local midnight.
func (r ReminderSchedule) MinuteOfDay() (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(r.Time, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("parse reminder time %q: %w", r.Time, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("reminder time %q out of range", r.Time)
	}
	return hour*60 + minute, nil
}
