package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/domain"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/observability"
)

// Repository provides Postgres-backed persistence for users, activity,
// preferences, announcements and the notification dedup log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertUser creates a user or refreshes the non-empty profile fields.
func (r *Repository) UpsertUser(ctx context.Context, u notify.Recipient) error {
	const query = `INSERT INTO users (user_id, email, name, timezone)
        VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''))
        ON CONFLICT (user_id) DO UPDATE SET
            email = COALESCE($2, users.email),
            name = COALESCE($3, users.name),
            timezone = COALESCE($4, users.timezone),
            updated_at = now()`

	_, err := r.pool.Exec(ctx, query, u.UserID, nullIfEmpty(u.Email), nullIfEmpty(u.Name), nullIfEmpty(u.Timezone))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.UserID, err)
	}
	return nil
}

// User fetches a profile by ID.
func (r *Repository) User(ctx context.Context, userID string) (notify.Recipient, bool, error) {
	const query = `SELECT user_id, email, name, timezone FROM users WHERE user_id=$1`

	var u notify.Recipient
	err := r.pool.QueryRow(ctx, query, userID).Scan(&u.UserID, &u.Email, &u.Name, &u.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Recipient{}, false, nil
	}
	if err != nil {
		return notify.Recipient{}, false, err
	}
	return u, true, nil
}

// ListUsers pages users in ID order.
func (r *Repository) ListUsers(ctx context.Context, afterID string, limit int) ([]notify.Recipient, error) {
	const query = `SELECT user_id, email, name, timezone FROM users
        WHERE user_id > $1 ORDER BY user_id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]notify.Recipient, 0, limit)
	for rows.Next() {
		var u notify.Recipient
		if err := rows.Scan(&u.UserID, &u.Email, &u.Name, &u.Timezone); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Preferences returns nil, nil when the user has no preference row.
func (r *Repository) Preferences(ctx context.Context, userID string) (*notify.Preferences, error) {
	const query = `SELECT in_app, email, kinds, reminder FROM notification_preferences WHERE user_id=$1`

	var (
		prefs           notify.Preferences
		kinds, reminder []byte
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(&prefs.InApp, &prefs.Email, &kinds, &reminder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(kinds, &prefs.Kinds); err != nil {
		return nil, fmt.Errorf("decode preference kinds for %s: %w", userID, err)
	}
	if err := json.Unmarshal(reminder, &prefs.Reminder); err != nil {
		return nil, fmt.Errorf("decode reminder schedule for %s: %w", userID, err)
	}
	return &prefs, nil
}

// SavePreferences replaces the user's preference row.
func (r *Repository) SavePreferences(ctx context.Context, userID string, prefs notify.Preferences) error {
	kinds, err := json.Marshal(prefs.Kinds)
	if err != nil {
		return err
	}
	reminder, err := json.Marshal(prefs.Reminder)
	if err != nil {
		return err
	}

	const query = `INSERT INTO notification_preferences (user_id, in_app, email, kinds, reminder)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE SET
            in_app = EXCLUDED.in_app,
            email = EXCLUDED.email,
            kinds = EXCLUDED.kinds,
            reminder = EXCLUDED.reminder,
            updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, userID, prefs.InApp, prefs.Email, kinds, reminder); err != nil {
		return fmt.Errorf("save preferences for %s: %w", userID, err)
	}
	return nil
}

// PracticeRecords implements activity.Source.
func (r *Repository) PracticeRecords(ctx context.Context, userID string, source activity.SourceType, since time.Time) ([]activity.Record, error) {
	const query = `SELECT event_id, user_id, item_id, item_name, performed_at FROM practice_log
        WHERE user_id=$1 AND source=$2 AND performed_at >= $3
        ORDER BY performed_at DESC, event_id`

	rows, err := r.pool.Query(ctx, query, userID, string(source), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []activity.Record
	for rows.Next() {
		rec := activity.Record{Source: source}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ItemID, &rec.ItemName, &rec.PerformedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoginRecords implements activity.Source.
func (r *Repository) LoginRecords(ctx context.Context, userID string, since time.Time) ([]activity.Record, error) {
	const query = `SELECT event_id, user_id, logged_in_at FROM login_events
        WHERE user_id=$1 AND logged_in_at >= $2
        ORDER BY logged_in_at DESC, event_id`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []activity.Record
	for rows.Next() {
		rec := activity.Record{Source: activity.SourceLogin}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.PerformedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InsertActivity stores a practice or login record, ignoring replays of the same event ID.
func (r *Repository) InsertActivity(ctx context.Context, rec activity.Record) (bool, error) {
	var (
		query string
		args  []interface{}
	)
	switch {
	case rec.Source == activity.SourceLogin:
		query = `INSERT INTO login_events (event_id, user_id, logged_in_at) VALUES ($1, $2, $3)
            ON CONFLICT (event_id) DO NOTHING`
		args = []interface{}{rec.ID, rec.UserID, rec.PerformedAt.UTC()}
	case rec.Source.IsPractice():
		query = `INSERT INTO practice_log (event_id, user_id, source, item_id, item_name, performed_at)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (event_id) DO NOTHING`
		args = []interface{}{rec.ID, rec.UserID, string(rec.Source), rec.ItemID, rec.ItemName, rec.PerformedAt.UTC()}
	default:
		return false, fmt.Errorf("insert activity %s: unknown source %q", rec.ID, rec.Source)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert activity %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	observability.RecordActivityIngested(rec.PerformedAt)
	return true, nil
}

// SessionCount implements batch.Store.
func (r *Repository) SessionCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM practice_log WHERE user_id=$1`, userID).Scan(&count)
	return count, err
}

// SourceCounts implements batch.Store.
func (r *Repository) SourceCounts(ctx context.Context, userID string) (map[activity.SourceType]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT source, count(*) FROM practice_log WHERE user_id=$1 GROUP BY source`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[activity.SourceType]int)
	for rows.Next() {
		var (
			source string
			count  int
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		counts[activity.SourceType(source)] = count
	}
	return counts, rows.Err()
}

// ActiveAnnouncements implements batch.Store.
func (r *Repository) ActiveAnnouncements(ctx context.Context, now time.Time) ([]notify.Announcement, error) {
	const query = `SELECT announcement_id, title, body, active, published_at FROM announcements
        WHERE active AND published_at <= $1
        ORDER BY published_at DESC, announcement_id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Announcement
	for rows.Next() {
		var a notify.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.Active, &a.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AlreadySent implements notify.DedupLog.
func (r *Repository) AlreadySent(ctx context.Context, userID string, trigger notify.Trigger) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM notification_log WHERE user_id=$1 AND kind=$2 AND trigger_key=$3)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, string(trigger.Kind), trigger.Key()).Scan(&exists)
	return exists, err
}

// Append implements notify.DedupLog. A concurrent duplicate is absorbed by the
// unique key and leaves the first entry in place.
func (r *Repository) Append(ctx context.Context, entry notify.LogEntry) error {
	if err := entry.Trigger.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(entry.Trigger)
	if err != nil {
		return err
	}
	via := make([]string, len(entry.SentVia))
	for i, ch := range entry.SentVia {
		via[i] = string(ch)
	}

	const query = `INSERT INTO notification_log (log_id, user_id, kind, trigger_key, trigger_data, sent_via, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, kind, trigger_key) DO NOTHING`

	_, err = r.pool.Exec(ctx, query, entry.ID, entry.UserID, string(entry.Kind()), entry.Trigger.Key(), data, via, entry.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("append notification log for %s: %w", entry.UserID, err)
	}
	observability.RecordNotificationLogged(entry.SentAt)
	return nil
}

// NotificationLog implements domain.Repository.
func (r *Repository) NotificationLog(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]notify.LogEntry, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT log_id::text, user_id, trigger_key, sent_via, sent_at FROM notification_log WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (sent_at, log_id) < ($3, $4::uuid)`
		args = append(args, cursor.SentAt, cursor.ID)
	}
	query += ` ORDER BY sent_at DESC, log_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]notify.LogEntry, 0, limit)
	for rows.Next() {
		var (
			entry notify.LogEntry
			key   string
			via   []string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &key, &via, &entry.SentAt); err != nil {
			return nil, nil, err
		}
		if entry.Trigger, err = notify.ParseTriggerKey(key); err != nil {
			return nil, nil, err
		}
		for _, ch := range via {
			entry.SentVia = append(entry.SentVia, notify.Channel(ch))
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{SentAt: last.SentAt, ID: last.ID}
	}
	return results, next, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
