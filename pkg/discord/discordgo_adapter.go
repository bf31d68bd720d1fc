package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// GatewayService implements ChatService against the real Discord
// gateway/REST API via discordgo. It is the concrete driver behind
// the abstract ChatService contract; tests use an in-memory fake
// instead.
type GatewayService struct{}

// NewGatewayService returns a ChatService backed by discordgo.
func NewGatewayService() *GatewayService {
	return &GatewayService{}
}

type gatewaySession struct {
	session *discordgo.Session
}

func (s *gatewaySession) Close() error {
	return s.session.Close()
}

// Connect opens a bot-token session and waits for the gateway to
// report ready, failing after 30s without readiness.
func (g *GatewayService) Connect(ctx context.Context, token string) (Session, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	ready := make(chan struct{})
	sess.AddHandlerOnce(func(*discordgo.Session, *discordgo.Ready) {
		close(ready)
	})

	if err := sess.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(30 * time.Second):
		_ = sess.Close()
		return nil, fmt.Errorf("discord: gateway did not become ready within 30s")
	case <-ctx.Done():
		_ = sess.Close()
		return nil, ctx.Err()
	}

	return &gatewaySession{session: sess}, nil
}

// FetchGuild returns guild metadata via the REST API.
func (g *GatewayService) FetchGuild(ctx context.Context, sess Session, guildID string) (Guild, error) {
	dg := sess.(*gatewaySession).session
	guild, err := dg.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return Guild{}, fmt.Errorf("discord: fetch guild %s: %w", guildID, err)
	}
	return Guild{
		ID:          guild.ID,
		Name:        guild.Name,
		IconURL:     guild.IconURL(""),
		MemberCount: guild.ApproximateMemberCount,
	}, nil
}

// FetchChannels returns every channel in the guild, each annotated
// with the bot's effective permissions so ListTextChannels can filter.
func (g *GatewayService) FetchChannels(ctx context.Context, sess Session, guildID string) ([]Channel, error) {
	dg := sess.(*gatewaySession).session
	channels, err := dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch channels for guild %s: %w", guildID, err)
	}

	out := make([]Channel, len(channels))
	for i, c := range channels {
		var mask int64
		if dg.State != nil && dg.State.User != nil {
			if p, err := dg.State.UserChannelPermissions(dg.State.User.ID, c.ID); err == nil {
				mask = p
			}
		}
		out[i] = Channel{
			ID:          c.ID,
			Name:        c.Name,
			Type:        int(c.Type),
			ParentID:    c.ParentID,
			Position:    c.Position,
			Topic:       c.Topic,
			Permissions: bitmaskPermissions(mask),
		}
	}
	return out, nil
}

// FetchMessages returns at most one page of a channel's messages,
// ordered descending by timestamp as discordgo's REST endpoint
// returns them.
func (g *GatewayService) FetchMessages(ctx context.Context, sess Session, channelID string, opts FetchOptions) ([]Message, error) {
	dg := sess.(*gatewaySession).session
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := dg.ChannelMessages(channelID, limit, opts.Before, opts.After, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch messages for channel %s: %w", channelID, err)
	}

	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = toMessage(m)
	}
	return out, nil
}

func toMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		Content:   m.Content,
		CreatedAt: messageTimestamp(m),
		Type:      int(m.Type),
		Author: Author{
			ID:         m.Author.ID,
			Username:   m.Author.Username,
			GlobalName: m.Author.GlobalName,
			Bot:        m.Author.Bot,
			AvatarURL:  m.Author.AvatarURL(""),
		},
	}
	if m.EditedTimestamp != nil {
		edited := *m.EditedTimestamp
		msg.EditedAt = &edited
	}
	if m.MessageReference != nil {
		msg.ReferenceID = m.MessageReference.MessageID
	}
	for _, e := range m.Embeds {
		msg.Embeds = append(msg.Embeds, Embed{Title: e.Title, Description: e.Description, URL: e.URL})
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID: a.ID, Filename: a.Filename, URL: a.URL, ContentType: a.ContentType, Size: a.Size,
		})
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, ReactionSummary{Emoji: r.Emoji.Name, Count: r.Count})
	}
	return msg
}

// messageTimestamp uses discordgo's Timestamp field and falls back to
// the ID-derived snowflake timestamp when the REST API returns that
// field zero-valued, as it sometimes does on older messages.
func messageTimestamp(m *discordgo.Message) time.Time {
	if !m.Timestamp.IsZero() {
		return m.Timestamp
	}
	if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
		return ts
	}
	return time.Time{}
}

type permissionSet struct {
	mask int64
}

func bitmaskPermissions(mask int64) Permissions {
	return &permissionSet{mask: mask}
}

func (p *permissionSet) Has(name string) bool {
	switch name {
	case "ViewChannel":
		return p.mask&discordgo.PermissionViewChannel != 0
	case "ReadMessageHistory":
		return p.mask&discordgo.PermissionReadMessageHistory != 0
	default:
		return false
	}
}
