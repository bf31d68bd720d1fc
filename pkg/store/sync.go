package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StartSyncState opens a new in_progress SyncState row for one scrape
// invocation.
func (s *Store) StartSyncState(ctx context.Context, syncType, guildID, channelID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_states (sync_type, guild_id, channel_id, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		syncType, nullableString(guildID), nullableString(channelID), s.now(), SyncStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("store: start sync state: %w", err)
	}
	return res.LastInsertId()
}

// CompleteSyncState marks a SyncState row completed. Terminal: a
// completed or failed row is never transitioned again.
func (s *Store) CompleteSyncState(ctx context.Context, id int64, messagesProcessed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_states
		SET status = ?, completed_at = ?, messages_processed = ?
		WHERE id = ? AND status = ?`,
		SyncStatusCompleted, s.now(), messagesProcessed, id, SyncStatusInProgress)
	if err != nil {
		return fmt.Errorf("store: complete sync state %d: %w", id, err)
	}
	return nil
}

// FailSyncState marks a SyncState row failed with an error message
// (including "cancelled" for a cooperative cancellation).
func (s *Store) FailSyncState(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_states
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		SyncStatusFailed, s.now(), errMsg, id, SyncStatusInProgress)
	if err != nil {
		return fmt.Errorf("store: fail sync state %d: %w", id, err)
	}
	return nil
}

// GetSyncState fetches one SyncState row by id.
func (s *Store) GetSyncState(ctx context.Context, id int64) (SyncState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sync_type, guild_id, channel_id, started_at, completed_at, messages_processed, status, error_message
		FROM sync_states WHERE id = ?`, id)

	var st SyncState
	var guildID, channelID, errMsg sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&st.ID, &st.SyncType, &guildID, &channelID, &st.StartedAt, &completedAt, &st.MessagesProcessed, &st.Status, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return SyncState{}, ErrNotFound
		}
		return SyncState{}, fmt.Errorf("store: get sync state %d: %w", id, err)
	}
	st.GuildID = guildID.String
	st.ChannelID = channelID.String
	st.ErrorMessage = errMsg.String
	if completedAt.Valid {
		st.CompletedAt = &completedAt.Time
	}
	return st, nil
}

// Channel returns a single channel by id.
func (s *Store) Channel(ctx context.Context, id string) (Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, name, type, parent_id, position, topic, last_scraped_message_id, last_scraped_at, message_count
		FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// ListChannels returns all channels for a guild, optionally filtered
// to a set of names.
func (s *Store) ListChannels(ctx context.Context, guildID string, names []string) ([]Channel, error) {
	query := `SELECT id, guild_id, name, type, parent_id, position, topic, last_scraped_message_id, last_scraped_at, message_count
		FROM channels WHERE guild_id = ?`
	args := []any{guildID}
	if len(names) > 0 {
		placeholders := ""
		for i, n := range names {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, n)
		}
		query += fmt.Sprintf(" AND name IN (%s)", placeholders)
	}
	query += " ORDER BY position ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (Channel, error) {
	var c Channel
	var parentID, topic, lastScrapedID sql.NullString
	var lastScrapedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.GuildID, &c.Name, &c.Type, &parentID, &c.Position, &topic, &lastScrapedID, &lastScrapedAt, &c.MessageCount); err != nil {
		if err == sql.ErrNoRows {
			return Channel{}, ErrNotFound
		}
		return Channel{}, fmt.Errorf("store: scan channel: %w", err)
	}
	c.ParentID = parentID.String
	c.Topic = topic.String
	c.LastScrapedMessageID = lastScrapedID.String
	if lastScrapedAt.Valid {
		c.LastScrapedAt = &lastScrapedAt.Time
	}
	return c, nil
}
