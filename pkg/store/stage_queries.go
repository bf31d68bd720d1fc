package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EnrichedMessage is a Message joined with its author, used as the
// candidate unit fed into the stage engine.
type EnrichedMessage struct {
	Message
	AuthorUsername   string
	AuthorGlobalName string
	AuthorIsBot      bool
}

// MessageFilter narrows a candidate selection by channel and/or a
// half-open timestamp range.
type MessageFilter struct {
	ChannelID string
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// GetUnprocessedMessages returns messages with no AIProcessing row for
// stage, ordered by timestamp ascending — spec.md §4.A.
func (s *Store) GetUnprocessedMessages(ctx context.Context, stage string, f MessageFilter) ([]EnrichedMessage, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.clean_content, m.timestamp, m.edited_timestamp,
			m.message_type, m.reference_id, m.thread_id, m.has_embeds, m.has_attachments, m.reaction_count,
			u.username, u.global_name, u.is_bot
		FROM messages m
		JOIN users u ON u.id = m.author_id
		LEFT JOIN ai_processing p ON p.entity_type = ? AND p.entity_id = m.id AND p.stage = ?
		WHERE p.id IS NULL`
	args := []any{EntityMessage, stage}
	query, args = appendMessageFilter(query, args, f)
	query += " ORDER BY m.timestamp ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return s.queryEnrichedMessages(ctx, query, args...)
}

// GetProcessedMessages returns messages joined to their AIProcessing
// row for stage. When keepOnly is set, the keep==1 predicate is
// applied as a WHERE clause evaluated after the join completes (see
// DESIGN.md Open Question #2) — never folded into the JOIN's ON
// clause, which would change outer-join semantics.
func (s *Store) GetProcessedMessages(ctx context.Context, stage string, keepOnly bool, limit int) ([]EnrichedMessage, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.clean_content, m.timestamp, m.edited_timestamp,
			m.message_type, m.reference_id, m.thread_id, m.has_embeds, m.has_attachments, m.reaction_count,
			u.username, u.global_name, u.is_bot
		FROM messages m
		JOIN users u ON u.id = m.author_id
		JOIN ai_processing p ON p.entity_type = ? AND p.entity_id = m.id AND p.stage = ?`
	args := []any{EntityMessage, stage}

	if keepOnly {
		query += ` WHERE json_extract(p.result_json, '$.keep') = 1`
	}
	query += " ORDER BY m.timestamp ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryEnrichedMessages(ctx, query, args...)
}

// GetKeptMessagesInRange returns keep=true filtered messages for a
// channel within a half-open timestamp range, used by the daily
// summarizer. Equivalent to GetProcessedMessages(filter, keepOnly)
// further restricted to one channel/day.
func (s *Store) GetKeptMessagesInRange(ctx context.Context, channelID string, start, end time.Time) ([]EnrichedMessage, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.clean_content, m.timestamp, m.edited_timestamp,
			m.message_type, m.reference_id, m.thread_id, m.has_embeds, m.has_attachments, m.reaction_count,
			u.username, u.global_name, u.is_bot
		FROM messages m
		JOIN users u ON u.id = m.author_id
		JOIN ai_processing p ON p.entity_type = ? AND p.entity_id = m.id AND p.stage = ?
		WHERE json_extract(p.result_json, '$.keep') = 1
			AND m.channel_id = ? AND m.timestamp >= ? AND m.timestamp < ?
		ORDER BY m.timestamp ASC`
	return s.queryEnrichedMessages(ctx, query, EntityMessage, StageFilter, channelID, start, end)
}

// GetExtractCandidates returns messages with filter.keep==1 and
// (categorize absent OR marketing_relevance in {high, medium}),
// ordered by timestamp DESC — the candidate set for the extract
// sub-extractors (spec.md §4.H).
func (s *Store) GetExtractCandidates(ctx context.Context, limit int) ([]EnrichedMessage, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.clean_content, m.timestamp, m.edited_timestamp,
			m.message_type, m.reference_id, m.thread_id, m.has_embeds, m.has_attachments, m.reaction_count,
			u.username, u.global_name, u.is_bot
		FROM messages m
		JOIN users u ON u.id = m.author_id
		JOIN ai_processing f ON f.entity_type = ? AND f.entity_id = m.id AND f.stage = ?
		LEFT JOIN ai_processing c ON c.entity_type = ? AND c.entity_id = m.id AND c.stage = ?
		WHERE json_extract(f.result_json, '$.keep') = 1
			AND (c.id IS NULL OR json_extract(c.result_json, '$.marketing_relevance') IN ('high', 'medium'))
		ORDER BY m.timestamp DESC`
	args := []any{EntityMessage, StageFilter, EntityMessage, StageCategorize}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryEnrichedMessages(ctx, query, args...)
}

func appendMessageFilter(query string, args []any, f MessageFilter) (string, []any) {
	if f.ChannelID != "" {
		query += " AND m.channel_id = ?"
		args = append(args, f.ChannelID)
	}
	if f.Start != nil {
		query += " AND m.timestamp >= ?"
		args = append(args, *f.Start)
	}
	if f.End != nil {
		query += " AND m.timestamp < ?"
		args = append(args, *f.End)
	}
	return query, args
}

func (s *Store) queryEnrichedMessages(ctx context.Context, query string, args ...any) ([]EnrichedMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query messages: %w", err)
	}
	defer rows.Close()

	var out []EnrichedMessage
	for rows.Next() {
		var em EnrichedMessage
		var refID, threadID, globalName sql.NullString
		var editedTS sql.NullTime
		var isBot int
		if err := rows.Scan(
			&em.ID, &em.ChannelID, &em.AuthorID, &em.Content, &em.CleanContent, &em.Timestamp, &editedTS,
			&em.MessageType, &refID, &threadID, &em.HasEmbeds, &em.HasAttachments, &em.ReactionCount,
			&em.AuthorUsername, &globalName, &isBot,
		); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		em.ReferenceID = refID.String
		em.ThreadID = threadID.String
		em.AuthorGlobalName = globalName.String
		em.AuthorIsBot = isBot != 0
		if editedTS.Valid {
			em.EditedTimestamp = &editedTS.Time
		}
		out = append(out, em)
	}
	return out, rows.Err()
}

// ShouldProcessOptions configures ShouldProcess.
type ShouldProcessOptions struct {
	Force              bool
	ReprocessAfterDays int
}

// ShouldProcess reports whether (entityType, entityID, stage) needs
// (re)processing: true if no row exists, the existing row is older
// than ReprocessAfterDays, or Force is set — spec.md §4.A.
func (s *Store) ShouldProcess(ctx context.Context, entityType, entityID, stage string, opts ShouldProcessOptions) (bool, error) {
	if opts.Force {
		return true, nil
	}

	var processedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT processed_at FROM ai_processing
		WHERE entity_type = ? AND entity_id = ? AND stage = ?`,
		entityType, entityID, stage).Scan(&processedAt)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: should process %s/%s/%s: %w", entityType, entityID, stage, err)
	}

	if opts.ReprocessAfterDays <= 0 {
		return false, nil
	}
	return s.now().Sub(processedAt) > time.Duration(opts.ReprocessAfterDays)*24*time.Hour, nil
}

// WriteAIProcessing writes (or, on the same key, replaces) one
// memoization row — last-write-wins on (entity_type, entity_id, stage).
func (s *Store) WriteAIProcessing(ctx context.Context, row AIProcessing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokensIn, tokensOut any
	if row.TokensIn != nil {
		tokensIn = *row.TokensIn
	}
	if row.TokensOut != nil {
		tokensOut = *row.TokensOut
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_processing (entity_type, entity_id, stage, result_json, model_used, tokens_in, tokens_out, guild_id, channel_id, period_start, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, stage) DO UPDATE SET
			result_json = excluded.result_json,
			model_used = excluded.model_used,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out,
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			period_start = excluded.period_start,
			processed_at = excluded.processed_at`,
		row.EntityType, row.EntityID, row.Stage, row.ResultJSON, nullableString(row.ModelUsed),
		tokensIn, tokensOut, nullableString(row.GuildID), nullableString(row.ChannelID), nullableString(row.PeriodStart), s.now())
	if err != nil {
		return fmt.Errorf("store: write ai_processing %s/%s/%s: %w", row.EntityType, row.EntityID, row.Stage, err)
	}
	return nil
}

// GetAIProcessing fetches one memoization row, or ErrNotFound.
func (s *Store) GetAIProcessing(ctx context.Context, entityType, entityID, stage string) (AIProcessing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, stage, result_json, model_used, tokens_in, tokens_out, guild_id, channel_id, period_start, processed_at
		FROM ai_processing WHERE entity_type = ? AND entity_id = ? AND stage = ?`,
		entityType, entityID, stage)

	var a AIProcessing
	var model, guildID, channelID, periodStart sql.NullString
	var tokensIn, tokensOut sql.NullInt64
	if err := row.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Stage, &a.ResultJSON, &model, &tokensIn, &tokensOut, &guildID, &channelID, &periodStart, &a.ProcessedAt); err != nil {
		if err == sql.ErrNoRows {
			return AIProcessing{}, ErrNotFound
		}
		return AIProcessing{}, fmt.Errorf("store: get ai_processing %s/%s/%s: %w", entityType, entityID, stage, err)
	}
	a.ModelUsed = model.String
	a.GuildID = guildID.String
	a.ChannelID = channelID.String
	a.PeriodStart = periodStart.String
	if tokensIn.Valid {
		v := int(tokensIn.Int64)
		a.TokensIn = &v
	}
	if tokensOut.Valid {
		v := int(tokensOut.Int64)
		a.TokensOut = &v
	}
	return a, nil
}

// GetDailySummariesInWeek returns daily_summary AIProcessing rows for a
// guild whose period_start falls within [weekStart, weekStart+6] —
// resolved via the dedicated period_start/guild_id/channel_id columns
// rather than substring-matching entity_id (DESIGN.md Open Question #1).
func (s *Store) GetDailySummariesInWeek(ctx context.Context, guildID string, weekStart, weekEndInclusive string) ([]AIProcessing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, stage, result_json, model_used, tokens_in, tokens_out, guild_id, channel_id, period_start, processed_at
		FROM ai_processing
		WHERE entity_type = ? AND stage = ? AND guild_id = ? AND period_start >= ? AND period_start <= ?
		ORDER BY channel_id ASC, period_start ASC`,
		EntityDailySummary, StageSummarize, guildID, weekStart, weekEndInclusive)
	if err != nil {
		return nil, fmt.Errorf("store: get daily summaries in week: %w", err)
	}
	defer rows.Close()

	var out []AIProcessing
	for rows.Next() {
		var a AIProcessing
		var model, gID, cID, pStart sql.NullString
		var tokensIn, tokensOut sql.NullInt64
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Stage, &a.ResultJSON, &model, &tokensIn, &tokensOut, &gID, &cID, &pStart, &a.ProcessedAt); err != nil {
			return nil, fmt.Errorf("store: scan daily summary: %w", err)
		}
		a.ModelUsed = model.String
		a.GuildID = gID.String
		a.ChannelID = cID.String
		a.PeriodStart = pStart.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetUnformattedExtracts returns MarketingExtract rows with no
// format-stage AIProcessing row for their source message — the
// candidate set for the deterministic format stage (spec.md §4.H).
func (s *Store) GetUnformattedExtracts(ctx context.Context, limit int) ([]MarketingExtract, error) {
	query := `
		SELECT e.id, e.source_type, e.source_id, e.extract_type, e.title, e.content, e.formatted_content,
			e.relevance_score, e.sentiment, e.topics_json, e.requires_permission, e.permission_granted, e.created_at
		FROM marketing_extracts e
		LEFT JOIN ai_processing p ON p.entity_type = ? AND p.entity_id = e.source_id AND p.stage = ?
		WHERE p.id IS NULL
		ORDER BY e.created_at ASC`
	args := []any{EntityMessage, StageFormat}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get unformatted extracts: %w", err)
	}
	defer rows.Close()

	var out []MarketingExtract
	for rows.Next() {
		var e MarketingExtract
		var title, formatted sql.NullString
		var topicsJSON string
		var requiresPerm, permGranted int
		if err := rows.Scan(&e.ID, &e.SourceType, &e.SourceID, &e.ExtractType, &title, &e.Content, &formatted,
			&e.RelevanceScore, &e.Sentiment, &topicsJSON, &requiresPerm, &permGranted, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan extract: %w", err)
		}
		e.Title = title.String
		e.FormattedContent = formatted.String
		e.RequiresPermission = requiresPerm != 0
		e.PermissionGranted = permGranted != 0
		if topicsJSON != "" {
			if err := json.Unmarshal([]byte(topicsJSON), &e.Topics); err != nil {
				return nil, fmt.Errorf("store: unmarshal topics for extract %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateExtractFormattedContent sets the formatted_content column for
// one MarketingExtract row. FormattedContent is the only field the
// format stage is allowed to mutate; everything else about an extract
// is set once at InsertMarketingExtract time.
func (s *Store) UpdateExtractFormattedContent(ctx context.Context, extractID, formatted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE marketing_extracts SET formatted_content = ? WHERE id = ?`, formatted, extractID)
	if err != nil {
		return fmt.Errorf("store: update formatted content %s: %w", extractID, err)
	}
	return nil
}

// InsertMarketingExtract appends one typed marketing artifact.
func (s *Store) InsertMarketingExtract(ctx context.Context, e MarketingExtract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := e.Topics
	if topics == nil {
		topics = []string{}
	}
	topicsBytes, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("store: marshal topics for extract %s: %w", e.ID, err)
	}
	topicsJSON := string(topicsBytes)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO marketing_extracts (
			id, source_type, source_id, extract_type, title, content, formatted_content,
			relevance_score, sentiment, topics_json, requires_permission, permission_granted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceType, e.SourceID, e.ExtractType, nullableString(e.Title), e.Content, nullableString(e.FormattedContent),
		e.RelevanceScore, e.Sentiment, topicsJSON, boolToInt(e.RequiresPermission), boolToInt(e.PermissionGranted), s.now())
	if err != nil {
		return fmt.Errorf("store: insert marketing extract %s: %w", e.ID, err)
	}
	return nil
}
