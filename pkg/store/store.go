// Package store persists scheduling events and per-user messaging settings
// in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bturcanu/crmbridge/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSettingsNotFound means no settings row matched the user.
	ErrSettingsNotFound = errors.New("user settings not found")
	// ErrSettingsAmbiguous means more than one settings row matched the user.
	ErrSettingsAmbiguous = errors.New("user settings ambiguous")
)

// Store reads and writes the bridge tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertEvent stores one delivery as-is. Nil fields become NULL.
func (s *Store) InsertEvent(ctx context.Context, rec types.EventRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendly_events (
			user_id, event_name, invitee_name, invitee_email,
			start_time, end_time, cancel_url, reschedule_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.UserID, rec.EventName, rec.InviteeName, rec.InviteeEmail,
		rec.StartTime, rec.EndTime, rec.CancelURL, rec.RescheduleURL,
	)
	if err != nil {
		return fmt.Errorf("store.InsertEvent: %w", err)
	}
	return nil
}

// LookupSettings returns the single settings row named userID.
func (s *Store) LookupSettings(ctx context.Context, userID string) (*types.UserSettings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, channel_id, message_format
		FROM users WHERE name = $1
		LIMIT 2`, userID)
	if err != nil {
		return nil, fmt.Errorf("store.LookupSettings: %w", err)
	}
	defer rows.Close()

	var found []types.UserSettings
	for rows.Next() {
		var u types.UserSettings
		var channel *string
		if err := rows.Scan(&u.Name, &channel, &u.MessageFormat); err != nil {
			return nil, fmt.Errorf("store.LookupSettings scan: %w", err)
		}
		u.ChannelID = types.Deref(channel)
		found = append(found, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.LookupSettings iteration: %w", err)
	}
	return singleRow(userID, found)
}

// UpsertSettings creates the settings row named userID, or updates the one
// that exists, and returns the stored result. Legacy duplicate rows are
// left untouched and reported as ErrSettingsAmbiguous.
func (s *Store) UpsertSettings(ctx context.Context, userID string, upd types.SettingsUpdate) (*types.UserSettings, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.UpsertSettings begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Serialises concurrent first writes for the same name.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return nil, fmt.Errorf("store.UpsertSettings lock: %w", err)
	}

	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE name = $1`, userID).Scan(&n); err != nil {
		return nil, fmt.Errorf("store.UpsertSettings count: %w", err)
	}
	switch n {
	case 0:
		_, err = tx.Exec(ctx, `
			INSERT INTO users (name, channel_id, message_format)
			VALUES ($1, $2, $3)`, userID, upd.ChannelID, upd.MessageFormat)
	case 1:
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET channel_id = COALESCE($2, channel_id),
			    message_format = COALESCE($3, message_format)
			WHERE name = $1`, userID, upd.ChannelID, upd.MessageFormat)
	default:
		return nil, fmt.Errorf("%w: %q matched %d rows", ErrSettingsAmbiguous, userID, n)
	}
	if err != nil {
		return nil, fmt.Errorf("store.UpsertSettings write: %w", err)
	}

	var u types.UserSettings
	var channel *string
	if err := tx.QueryRow(ctx, `
		SELECT name, channel_id, message_format
		FROM users WHERE name = $1`, userID).Scan(&u.Name, &channel, &u.MessageFormat); err != nil {
		return nil, fmt.Errorf("store.UpsertSettings read back: %w", err)
	}
	u.ChannelID = types.Deref(channel)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store.UpsertSettings commit: %w", err)
	}
	return &u, nil
}

func singleRow(userID string, rows []types.UserSettings) (*types.UserSettings, error) {
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrSettingsNotFound, userID)
	case 1:
		return &rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matched %d rows", ErrSettingsAmbiguous, userID, len(rows))
	}
}
