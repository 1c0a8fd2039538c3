// Package memory provides an in-process store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/domain"
	"example.com/practice/internal/notify"
)

// Store keeps users, activity, preferences, announcements and the dedup log in memory.
type Store struct {
	mu            sync.RWMutex
	users         map[string]notify.Recipient
	prefs         map[string]notify.Preferences
	records       map[string][]activity.Record
	recordIDs     map[string]struct{}
	announcements []notify.Announcement
	log           map[string]notify.LogEntry
	logOrder      []string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]notify.Recipient),
		prefs:     make(map[string]notify.Preferences),
		records:   make(map[string][]activity.Record),
		recordIDs: make(map[string]struct{}),
		log:       make(map[string]notify.LogEntry),
	}
}

// UpsertUser creates or updates a user profile. Empty fields keep their stored value.
func (s *Store) UpsertUser(_ context.Context, u notify.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.UserID]; ok {
		u.Email = coalesce(u.Email, prev.Email)
		u.Name = coalesce(u.Name, prev.Name)
		u.Timezone = coalesce(u.Timezone, prev.Timezone)
	}
	s.users[u.UserID] = u
	return nil
}

func coalesce(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SetPreferences stores p for userID.
func (s *Store) SetPreferences(userID string, p notify.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = p
}

// AddAnnouncement stores an announcement.
func (s *Store) AddAnnouncement(a notify.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcements = append(s.announcements, a)
}

// InsertActivity stores r unless a record with the same ID exists.
func (s *Store) InsertActivity(_ context.Context, r activity.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recordIDs[r.ID]; ok {
		return false, nil
	}
	s.recordIDs[r.ID] = struct{}{}
	s.records[r.UserID] = append(s.records[r.UserID], r)
	return true, nil
}

// ListUsers implements batch.Store.
func (s *Store) ListUsers(_ context.Context, afterID string, limit int) ([]notify.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]notify.Recipient, len(ids))
	for i, id := range ids {
		out[i] = s.users[id]
	}
	return out, nil
}

// User returns a profile by ID.
func (s *Store) User(_ context.Context, userID string) (notify.Recipient, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return u, ok, nil
}

// SavePreferences replaces the user's preference record.
func (s *Store) SavePreferences(_ context.Context, userID string, p notify.Preferences) error {
	s.SetPreferences(userID, p)
	return nil
}

// Preferences implements batch.Store.
func (s *Store) Preferences(_ context.Context, userID string) (*notify.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// PracticeRecords implements activity.Source.
func (s *Store) PracticeRecords(_ context.Context, userID string, source activity.SourceType, since time.Time) ([]activity.Record, error) {
	return s.recordsOf(userID, source, since), nil
}

// LoginRecords implements activity.Source.
func (s *Store) LoginRecords(_ context.Context, userID string, since time.Time) ([]activity.Record, error) {
	return s.recordsOf(userID, activity.SourceLogin, since), nil
}

func (s *Store) recordsOf(userID string, source activity.SourceType, since time.Time) []activity.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []activity.Record
	for _, r := range s.records[userID] {
		if r.Source == source && !r.PerformedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

// SessionCount implements batch.Store. Every practice record is one session.
func (s *Store) SessionCount(ctx context.Context, userID string) (int, error) {
	counts, err := s.SourceCounts(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// SourceCounts implements batch.Store.
func (s *Store) SourceCounts(_ context.Context, userID string) (map[activity.SourceType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[activity.SourceType]int)
	for _, r := range s.records[userID] {
		if r.Source.IsPractice() {
			counts[r.Source]++
		}
	}
	return counts, nil
}

// ActiveAnnouncements implements batch.Store.
func (s *Store) ActiveAnnouncements(_ context.Context, now time.Time) ([]notify.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notify.Announcement
	for _, a := range s.announcements {
		if a.Active && !a.PublishedAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// AlreadySent implements notify.DedupLog.
func (s *Store) AlreadySent(_ context.Context, userID string, trigger notify.Trigger) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.log[logKey(userID, trigger)]
	return ok, nil
}

// Append implements notify.DedupLog. A second entry for the same event is ignored.
func (s *Store) Append(_ context.Context, entry notify.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey(entry.UserID, entry.Trigger)
	if _, ok := s.log[key]; ok {
		return nil
	}
	s.log[key] = entry
	s.logOrder = append(s.logOrder, key)
	return nil
}

// Entries returns the dedup log in append order.
func (s *Store) Entries() []notify.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.LogEntry, len(s.logOrder))
	for i, key := range s.logOrder {
		out[i] = s.log[key]
	}
	return out
}

// NotificationLog implements domain.Repository. Entries are ordered by SentAt
// then ID, both descending.
func (s *Store) NotificationLog(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]notify.LogEntry, *domain.Cursor, error) {
	s.mu.RLock()
	var entries []notify.LogEntry
	for _, key := range s.logOrder {
		if e := s.log[key]; e.UserID == userID {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return after(entries[i], entries[j].SentAt, entries[j].ID)
	})

	out := make([]notify.LogEntry, 0, limit)
	for _, e := range entries {
		if cursor != nil && !after(notify.LogEntry{SentAt: cursor.SentAt, ID: cursor.ID}, e.SentAt, e.ID) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{SentAt: last.SentAt, ID: last.ID}
	}
	return out, next, nil
}

// after reports whether e comes before (sentAt, id) in newest-first order.
func after(e notify.LogEntry, sentAt time.Time, id string) bool {
	if !e.SentAt.Equal(sentAt) {
		return e.SentAt.After(sentAt)
	}
	return e.ID > id
}

func logKey(userID string, trigger notify.Trigger) string {
	return userID + "\x00" + trigger.Key()
}
