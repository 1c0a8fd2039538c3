// Package events defines the payloads exchanged with other services.
package events

import "time"

// Event type names, carried in the event_type message header.
const (
	TypePracticeLogged        = "practice.logged"
	TypeUserLoggedIn          = "user.logged_in"
	TypeNotificationRequested = "notification.requested"
)

// PracticeLogged is emitted when a user completes a pose, series or sequence.
type PracticeLogged struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	Source      string    `json:"source"`
	ItemID      string    `json:"item_id"`
	ItemName    string    `json:"item_name,omitempty"`
	PerformedAt time.Time `json:"performed_at"`
}

// UserLoggedIn is emitted on every successful sign-in. Profile fields are
// optional and, when present, refresh the stored recipient profile.
type UserLoggedIn struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	Timezone   string    `json:"timezone,omitempty"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// NotificationRequested asks a downstream channel worker to deliver a message.
type NotificationRequested struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	Channel        string    `json:"channel"`
	Kind           string    `json:"kind"`
	Variant        string    `json:"variant"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	RequestedAt    time.Time `json:"requested_at"`
}
