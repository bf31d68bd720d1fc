package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/discord-curator/curator/pkg/store"
)

// ScrapeOptions parameterizes one Drive invocation.
type ScrapeOptions struct {
	GuildID     string
	Token       string
	Channels    []string // optional name filter
	Incremental bool
	Limit       int
	DelayMS     int
	// DryRun connects and enumerates channels without starting a
	// SyncState or persisting anything.
	DryRun bool
}

// ScrapeResult summarizes one completed (or partially completed)
// scrape pass.
type ScrapeResult struct {
	SyncStateID       int64
	MessagesProcessed int
	ChannelErrors     map[string]error
}

// Scraper drives scrape passes against a ChatService and persists
// results through a Store — spec.md §4.B "Drive a scrape pass".
type Scraper struct {
	svc    ChatService
	st     *store.Store
	logger *slog.Logger
}

// New constructs a Scraper.
func New(svc ChatService, st *store.Store, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{svc: svc, st: st, logger: logger}
}

// Drive runs one full scrape pass: connect, upsert the guild, open a
// SyncState row, enumerate readable channels (optionally filtered by
// name), and stream each channel's messages into the store.
//
// A per-channel error is logged and the channel is skipped — its
// last_scraped_message_id is not advanced — but the pass continues to
// the next channel. Connect, guild fetch and guild upsert errors are
// returned before the SyncState row is opened. Once it is open, a
// channel-enumeration error or a canceled context marks it failed and
// returns the error; an error completing the row is returned without
// marking it failed. Per-channel errors alone still let the SyncState
// complete.
func (s *Scraper) Drive(ctx context.Context, opts ScrapeOptions) (ScrapeResult, error) {
	sess, err := s.svc.Connect(ctx, opts.Token)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("discord: connect: %w", err)
	}
	defer sess.Close()

	guild, err := s.svc.FetchGuild(ctx, sess, opts.GuildID)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("discord: fetch guild %s: %w", opts.GuildID, err)
	}

	if opts.DryRun {
		channels, err := ListTextChannels(ctx, s.svc, sess, guild.ID)
		if err != nil {
			return ScrapeResult{}, fmt.Errorf("discord: list channels: %w", err)
		}
		channels = filterChannelsByName(channels, opts.Channels)
		s.logger.Info("dry run: would scrape", "guild", guild.Name, "channels", len(channels))
		return ScrapeResult{ChannelErrors: map[string]error{}}, nil
	}

	if err := s.st.UpsertGuild(ctx, store.Guild{
		ID: guild.ID, Name: guild.Name, IconURL: guild.IconURL, MemberCount: guild.MemberCount,
	}); err != nil {
		return ScrapeResult{}, fmt.Errorf("discord: upsert guild: %w", err)
	}

	syncType := store.SyncTypeFull
	if opts.Incremental {
		syncType = store.SyncTypeIncremental
	}
	syncID, err := s.st.StartSyncState(ctx, syncType, guild.ID, "")
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("discord: start sync state: %w", err)
	}

	channels, err := ListTextChannels(ctx, s.svc, sess, guild.ID)
	if err != nil {
		_ = s.st.FailSyncState(ctx, syncID, err.Error())
		return ScrapeResult{}, fmt.Errorf("discord: list channels: %w", err)
	}
	channels = filterChannelsByName(channels, opts.Channels)

	result := ScrapeResult{SyncStateID: syncID, ChannelErrors: make(map[string]error)}

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			_ = s.st.FailSyncState(ctx, syncID, "cancelled")
			return result, err
		}

		processed, err := s.scrapeChannel(ctx, sess, guild.ID, ch, opts)
		if err != nil {
			s.logger.Warn("channel scrape failed, skipping", "channel", ch.ID, "name", ch.Name, "error", err)
			result.ChannelErrors[ch.ID] = err
			continue
		}
		result.MessagesProcessed += processed
	}

	if err := s.st.CompleteSyncState(ctx, syncID, result.MessagesProcessed); err != nil {
		return result, fmt.Errorf("discord: complete sync state: %w", err)
	}
	return result, nil
}

func filterChannelsByName(channels []Channel, names []string) []Channel {
	if len(names) == 0 {
		return channels
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Channel
	for _, c := range channels {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// scrapeChannel upserts the channel, streams its messages, and on
// success advances the resume cursor to the lexicographically
// greatest id seen — spec.md §4.B steps 3-5.
func (s *Scraper) scrapeChannel(ctx context.Context, sess Session, guildID string, ch Channel, opts ScrapeOptions) (int, error) {
	dbChannel := store.Channel{
		ID: ch.ID, GuildID: guildID, Name: ch.Name, Type: ch.Type,
		ParentID: ch.ParentID, Position: ch.Position, Topic: ch.Topic,
	}
	if err := s.st.UpsertChannel(ctx, dbChannel); err != nil {
		return 0, fmt.Errorf("upsert channel: %w", err)
	}

	fetchOpts := FetchOptions{Limit: opts.Limit, DelayMS: opts.DelayMS}
	if opts.Incremental {
		existing, err := s.st.Channel(ctx, ch.ID)
		if err != nil && err != store.ErrNotFound {
			return 0, fmt.Errorf("load channel state: %w", err)
		}
		fetchOpts.After = existing.LastScrapedMessageID
	}

	it := NewMessageIterator(ctx, s.svc, sess, ch.ID, fetchOpts)

	var processed int
	var highWatermark string

	for it.Next() {
		m := it.Message()
		if err := s.persistMessage(ctx, ch.ID, m); err != nil {
			return processed, fmt.Errorf("persist message %s: %w", m.ID, err)
		}
		processed++
		if m.ID > highWatermark {
			highWatermark = m.ID
		}
	}
	if err := it.Err(); err != nil {
		return processed, err
	}

	if highWatermark != "" {
		if err := s.st.UpdateChannelLastScraped(ctx, ch.ID, highWatermark, processed); err != nil {
			return processed, fmt.Errorf("update last scraped: %w", err)
		}
	}
	return processed, nil
}

// persistMessage upserts a message's user, the message itself, then
// its embeds/attachments/reactions, in that order — the store's
// foreign keys require the author to exist before the message.
func (s *Scraper) persistMessage(ctx context.Context, channelID string, m Message) error {
	if err := s.st.UpsertUser(ctx, store.User{
		ID: m.Author.ID, Username: m.Author.Username, GlobalName: m.Author.GlobalName,
		Discriminator: m.Author.Discriminator, AvatarURL: m.Author.AvatarURL, IsBot: m.Author.Bot,
	}); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if err := s.st.UpsertMessage(ctx, store.Message{
		ID: m.ID, ChannelID: channelID, AuthorID: m.Author.ID,
		Content: m.Content, CleanContent: m.CleanContent, Timestamp: m.CreatedAt, EditedTimestamp: m.EditedAt,
		MessageType: m.Type, ReferenceID: m.ReferenceID, ThreadID: m.ThreadID,
		HasEmbeds: len(m.Embeds) > 0, HasAttachments: len(m.Attachments) > 0, ReactionCount: len(m.Reactions),
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	for _, e := range m.Embeds {
		if err := s.st.UpsertEmbed(ctx, store.Embed{
			MessageID: m.ID, Title: e.Title, Description: e.Description, URL: e.URL,
		}); err != nil {
			return fmt.Errorf("upsert embed: %w", err)
		}
	}
	for _, a := range m.Attachments {
		if err := s.st.UpsertAttachment(ctx, store.Attachment{
			ID: a.ID, MessageID: m.ID, Filename: a.Filename, URL: a.URL, ContentType: a.ContentType, Size: a.Size,
		}); err != nil {
			return fmt.Errorf("upsert attachment: %w", err)
		}
	}
	for _, r := range m.Reactions {
		if err := s.st.UpsertReaction(ctx, store.Reaction{
			MessageID: m.ID, Emoji: r.Emoji, Count: r.Count,
		}); err != nil {
			return fmt.Errorf("upsert reaction: %w", err)
		}
	}
	return nil
}
