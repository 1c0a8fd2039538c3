package batch

import (
	"context"
	"time"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/notify"
)

// Store is the read side the orchestrator needs for one pass.
type Store interface {
	activity.Source

	// ListUsers pages the population in user ID order, starting after afterID.
	ListUsers(ctx context.Context, afterID string, limit int) ([]notify.Recipient, error)
	// Preferences returns nil, nil when the user has no preference record.
	Preferences(ctx context.Context, userID string) (*notify.Preferences, error)
	SessionCount(ctx context.Context, userID string) (int, error)
	SourceCounts(ctx context.Context, userID string) (map[activity.SourceType]int, error)
	ActiveAnnouncements(ctx context.Context, now time.Time) ([]notify.Announcement, error)
}

// Sender delivers one message on one channel.
type Sender interface {
	Send(ctx context.Context, recipient notify.Recipient, channel notify.Channel, msg notify.Message) error
}

// Locker guards a pass against concurrent schedulers. TryLock reports false
// when another holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
