package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExportMessage is a Message joined with its author and (optionally
// loaded by the caller) its child rows, shaped for the export CLI
// surface rather than the stage engine's EnrichedMessage.
type ExportMessage struct {
	EnrichedMessage
	Embeds      []Embed
	Attachments []Attachment
	Reactions   []Reaction
}

// ExportFilter narrows an export query by channel and/or a half-open
// timestamp range — spec.md §6 `--since`/`--until`.
type ExportFilter struct {
	ChannelID string
	Since     *time.Time
	Until     *time.Time
}

// ExportMessages returns messages (with author) matching filter,
// ordered oldest first. includeEmbeds/includeAttachments/
// includeReactions control which child rows are populated per message
// — loading is skipped entirely for a disabled kind rather than loaded
// and discarded, since a guild export can span tens of thousands of
// messages.
func (s *Store) ExportMessages(ctx context.Context, filter ExportFilter, includeEmbeds, includeAttachments, includeReactions bool) ([]ExportMessage, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.clean_content, m.timestamp, m.edited_timestamp,
			m.message_type, m.reference_id, m.thread_id, m.has_embeds, m.has_attachments, m.reaction_count,
			u.username, u.global_name, u.is_bot
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE 1 = 1`
	var args []any
	if filter.ChannelID != "" {
		query += " AND m.channel_id = ?"
		args = append(args, filter.ChannelID)
	}
	if filter.Since != nil {
		query += " AND m.timestamp >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND m.timestamp < ?"
		args = append(args, *filter.Until)
	}
	query += " ORDER BY m.timestamp ASC"

	enriched, err := s.queryEnrichedMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: export messages: %w", err)
	}

	out := make([]ExportMessage, len(enriched))
	for i, em := range enriched {
		out[i] = ExportMessage{EnrichedMessage: em}
	}

	if includeEmbeds {
		if err := s.attachEmbeds(ctx, out); err != nil {
			return nil, err
		}
	}
	if includeAttachments {
		if err := s.attachAttachments(ctx, out); err != nil {
			return nil, err
		}
	}
	if includeReactions {
		if err := s.attachReactions(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// messageIDPlaceholders builds a byID index plus a "?,?,?"-style IN
// clause and its argument list scoped to messages — child-row fan-out
// queries only ever touch the page of messages being exported, never
// the full table.
func messageIDPlaceholders(messages []ExportMessage) (map[string]*ExportMessage, string, []any) {
	byID := make(map[string]*ExportMessage, len(messages))
	placeholders := ""
	args := make([]any, len(messages))
	for i := range messages {
		byID[messages[i].ID] = &messages[i]
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = messages[i].ID
	}
	return byID, placeholders, args
}

func (s *Store) attachEmbeds(ctx context.Context, messages []ExportMessage) error {
	if len(messages) == 0 {
		return nil
	}
	byID, placeholders, args := messageIDPlaceholders(messages)
	rows, err := s.db.QueryContext(ctx, `SELECT id, message_id, title, description, url, data_json FROM embeds WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: query embeds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Embed
		var title, desc, url, data sql.NullString
		if err := rows.Scan(&e.ID, &e.MessageID, &title, &desc, &url, &data); err != nil {
			return fmt.Errorf("store: scan embed: %w", err)
		}
		e.Title, e.Description, e.URL, e.DataJSON = title.String, desc.String, url.String, data.String
		byID[e.MessageID].Embeds = append(byID[e.MessageID].Embeds, e)
	}
	return rows.Err()
}

func (s *Store) attachAttachments(ctx context.Context, messages []ExportMessage) error {
	if len(messages) == 0 {
		return nil
	}
	byID, placeholders, args := messageIDPlaceholders(messages)
	rows, err := s.db.QueryContext(ctx, `SELECT id, message_id, filename, url, content_type, size FROM attachments WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: query attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Attachment
		var contentType sql.NullString
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.URL, &contentType, &a.Size); err != nil {
			return fmt.Errorf("store: scan attachment: %w", err)
		}
		a.ContentType = contentType.String
		byID[a.MessageID].Attachments = append(byID[a.MessageID].Attachments, a)
	}
	return rows.Err()
}

func (s *Store) attachReactions(ctx context.Context, messages []ExportMessage) error {
	if len(messages) == 0 {
		return nil
	}
	byID, placeholders, args := messageIDPlaceholders(messages)
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, emoji, count FROM reactions WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: query reactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageID, &r.Emoji, &r.Count); err != nil {
			return fmt.Errorf("store: scan reaction: %w", err)
		}
		byID[r.MessageID].Reactions = append(byID[r.MessageID].Reactions, r)
	}
	return rows.Err()
}

// ExportSummaries returns daily_summary and/or weekly_summary
// AIProcessing rows for guildID whose period_start falls within
// [since, until] (both formatted "2006-01-02"), ordered oldest first —
// the candidate set for `export summary`.
func (s *Store) ExportSummaries(ctx context.Context, guildID, since, until string) ([]AIProcessing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, stage, result_json, model_used, tokens_in, tokens_out, guild_id, channel_id, period_start, processed_at
		FROM ai_processing
		WHERE stage = ? AND entity_type IN (?, ?) AND guild_id = ? AND period_start >= ? AND period_start <= ?
		ORDER BY period_start ASC, entity_type ASC, channel_id ASC`,
		StageSummarize, EntityDailySummary, EntityWeeklySummary, guildID, since, until)
	if err != nil {
		return nil, fmt.Errorf("store: export summaries: %w", err)
	}
	defer rows.Close()

	var out []AIProcessing
	for rows.Next() {
		var a AIProcessing
		var model, gID, cID, pStart sql.NullString
		var tokensIn, tokensOut sql.NullInt64
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Stage, &a.ResultJSON, &model, &tokensIn, &tokensOut, &gID, &cID, &pStart, &a.ProcessedAt); err != nil {
			return nil, fmt.Errorf("store: scan export summary: %w", err)
		}
		a.ModelUsed = model.String
		a.GuildID = gID.String
		a.ChannelID = cID.String
		a.PeriodStart = pStart.String
		if tokensIn.Valid {
			v := int(tokensIn.Int64)
			a.TokensIn = &v
		}
		if tokensOut.Valid {
			v := int(tokensOut.Int64)
			a.TokensOut = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
