package notify

import (
	"time"

	"example.com/practice/internal/activity"
)

// Recipient is the projection handed to delivery.
type Recipient struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Announcement is a product announcement that may be broadcast.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Active      bool      `json:"active"`
	PublishedAt time.Time `json:"published_at"`
}

// Snapshot is everything the evaluators know about one user at one instant.
type Snapshot struct {
	Recipient     Recipient
	Preferences   *Preferences
	OffsetMinutes int
	Logins        []time.Time
	Practice      []activity.Record
	SessionCount  int
	SourceCounts  map[activity.SourceType]int
	Announcements []Announcement
}
