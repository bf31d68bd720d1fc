package store

import (
	"context"
	"fmt"
)

// UpsertGuild inserts or updates a Guild by its natural id. Conflicts
// update only the mutable fields (name, icon, member count); id is
// never rewritten.
func (s *Store) UpsertGuild(ctx context.Context, g Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guilds (id, name, icon_url, member_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			icon_url = excluded.icon_url,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at`,
		g.ID, g.Name, nullableString(g.IconURL), g.MemberCount, s.now(), s.now())
	if err != nil {
		return fmt.Errorf("store: upsert guild %s: %w", g.ID, err)
	}
	return nil
}

// UpsertChannel inserts or updates a Channel by its natural id.
// LastScrapedMessageID and LastScrapedAt are NOT touched here — they
// are only advanced via UpdateChannelLastScraped, on successful
// completion of a channel's scrape pass.
func (s *Store) UpsertChannel(ctx context.Context, c Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, guild_id, name, type, parent_id, position, topic, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			parent_id = excluded.parent_id,
			position = excluded.position,
			topic = excluded.topic,
			updated_at = excluded.updated_at`,
		c.ID, c.GuildID, c.Name, c.Type, nullableString(c.ParentID), c.Position, nullableString(c.Topic), s.now(), s.now())
	if err != nil {
		return fmt.Errorf("store: upsert channel %s: %w", c.ID, err)
	}
	return nil
}

// UpdateChannelLastScraped advances the resume cursor. Called only
// after a channel's scrape pass completes successfully, so a crash
// mid-channel leaves the cursor untouched and yields an at-least-once
// re-fetch next run (safe, because upserts are idempotent).
func (s *Store) UpdateChannelLastScraped(ctx context.Context, channelID, lastMessageID string, messageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE channels
		SET last_scraped_message_id = ?, last_scraped_at = ?, message_count = message_count + ?, updated_at = ?
		WHERE id = ?`,
		lastMessageID, s.now(), messageCount, s.now(), channelID)
	if err != nil {
		return fmt.Errorf("store: update channel last scraped %s: %w", channelID, err)
	}
	return nil
}

// DeleteChannel removes a channel and, via ON DELETE CASCADE, all of
// its messages and their children.
func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("store: delete channel %s: %w", channelID, err)
	}
	return nil
}

// UpsertUser inserts or updates a User by its natural id.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, global_name, discriminator, avatar_url, is_bot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			global_name = excluded.global_name,
			discriminator = excluded.discriminator,
			avatar_url = excluded.avatar_url,
			is_bot = excluded.is_bot,
			updated_at = excluded.updated_at`,
		u.ID, u.Username, nullableString(u.GlobalName), u.Discriminator, nullableString(u.AvatarURL), boolToInt(u.IsBot), s.now(), s.now())
	if err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertMessage inserts a Message, or updates its mutable content
// fields if it already exists (an edited message re-encountered on a
// later scrape). Timestamp is set only on insert and is never
// rewritten — invariant (ii) of spec.md §3.
func (s *Store) UpsertMessage(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, channel_id, author_id, content, clean_content, timestamp, edited_timestamp,
			message_type, reference_id, thread_id, has_embeds, has_attachments, reaction_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			clean_content = excluded.clean_content,
			edited_timestamp = excluded.edited_timestamp,
			has_embeds = excluded.has_embeds,
			has_attachments = excluded.has_attachments,
			reaction_count = excluded.reaction_count`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, m.CleanContent, m.Timestamp, m.EditedTimestamp,
		m.MessageType, nullableString(m.ReferenceID), nullableString(m.ThreadID),
		boolToInt(m.HasEmbeds), boolToInt(m.HasAttachments), m.ReactionCount, s.now())
	if err != nil {
		return fmt.Errorf("store: upsert message %s: %w", m.ID, err)
	}
	return nil
}

// UpsertEmbed inserts a new Embed row for a message. Embeds have no
// natural id in the Discord API, so every call appends a row; callers
// are expected to delete-then-reinsert on full message re-scrape if
// that semantic is needed (not required by spec.md).
func (s *Store) UpsertEmbed(ctx context.Context, e Embed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeds (message_id, title, description, url, data_json)
		VALUES (?, ?, ?, ?, ?)`,
		e.MessageID, nullableString(e.Title), nullableString(e.Description), nullableString(e.URL), e.DataJSON)
	if err != nil {
		return fmt.Errorf("store: insert embed for message %s: %w", e.MessageID, err)
	}
	return nil
}

// UpsertAttachment inserts or updates an Attachment by its natural id.
func (s *Store) UpsertAttachment(ctx context.Context, a Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, message_id, filename, url, content_type, size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			url = excluded.url,
			content_type = excluded.content_type,
			size = excluded.size`,
		a.ID, a.MessageID, a.Filename, a.URL, nullableString(a.ContentType), a.Size)
	if err != nil {
		return fmt.Errorf("store: upsert attachment %s: %w", a.ID, err)
	}
	return nil
}

// UpsertReaction inserts or updates a Reaction, unique per
// (MessageID, Emoji).
func (s *Store) UpsertReaction(ctx context.Context, r Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, emoji, count)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id, emoji) DO UPDATE SET count = excluded.count`,
		r.MessageID, r.Emoji, r.Count)
	if err != nil {
		return fmt.Errorf("store: upsert reaction %s/%s: %w", r.MessageID, r.Emoji, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
