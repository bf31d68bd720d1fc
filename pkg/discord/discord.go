// Package discord defines the chat-service contract consumed by the
// Scraper (spec.md §6) and implements the scrape-pass orchestrator
// (spec.md §4.B) against it. The contract is expressed as Go
// interfaces so a real Discord gateway client and an in-memory test
// double both satisfy it.
package discord

import (
	"context"
	"time"
)

// Channel types that ListTextChannels includes or excludes, spec.md
// §4.B "ListTextChannels". Values
// match Discord's numeric channel type enum.
const (
	ChannelTypeGuildText       = 0
	ChannelTypeGuildVoice      = 2
	ChannelTypeGuildCategory   = 4
	ChannelTypeGuildAnnounce   = 5
	ChannelTypeAnnounceThread  = 10
	ChannelTypePublicThread    = 11
	ChannelTypePrivateThread   = 12
	ChannelTypeGuildStageVoice = 13
	ChannelTypeGuildDirectory  = 14
	ChannelTypeGuildForum      = 15
	ChannelTypeGuildMedia      = 16
)

// textChannelTypes are the channel types ListTextChannels will return,
// subject to permission filtering. Threads are included since they
// carry messages; voice/stage/category/directory/media are excluded.
var textChannelTypes = map[int]bool{
	ChannelTypeGuildText:      true,
	ChannelTypeGuildAnnounce:  true,
	ChannelTypeAnnounceThread: true,
	ChannelTypePublicThread:   true,
	ChannelTypePrivateThread:  true,
	ChannelTypeGuildForum:     true,
}

// Session is an authenticated connection to the chat service,
// obtained from Connect.
type Session interface {
	// Close tears down the session.
	Close() error
}

// Guild is the subset of guild metadata the scraper persists.
type Guild struct {
	ID          string
	Name        string
	IconURL     string
	MemberCount int
}

// Permissions reports the bot's effective permissions in a channel.
type Permissions interface {
	Has(name string) bool
}

// Channel is the subset of channel metadata the scraper persists,
// plus the permission check ListTextChannels needs to apply.
type Channel struct {
	ID          string
	Name        string
	Type        int
	ParentID    string
	Position    int
	Topic       string
	Permissions Permissions
}

// Author is the subset of a message author's fields the scraper
// persists.
type Author struct {
	ID            string
	Username      string
	GlobalName    string
	Discriminator string
	Bot           bool
	AvatarURL     string
}

// Embed is one embed attached to a message.
type Embed struct {
	Title       string
	Description string
	URL         string
}

// Attachment is one file attached to a message.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int64
}

// ReactionSummary is one aggregated reaction on a message.
type ReactionSummary struct {
	Emoji string
	Count int
}

// Message is the subset of message fields the scraper persists.
type Message struct {
	ID           string
	Author       Author
	Content      string
	CleanContent string
	CreatedAt    time.Time
	EditedAt     *time.Time
	Type         int
	ReferenceID  string
	ThreadID     string
	Embeds       []Embed
	Attachments  []Attachment
	Reactions    []ReactionSummary
}

// FetchOptions bounds one page of FetchMessages.
type FetchOptions struct {
	After   string
	Before  string
	Limit   int
	DelayMS int
}

// ChatService is the abstract chat-service contract consumed by the
// Scraper — spec.md §6. A real implementation wraps a gateway/REST
// client; tests supply an in-memory fake.
type ChatService interface {
	// Connect establishes a session. Implementations must fail after
	// 30s without readiness.
	Connect(ctx context.Context, token string) (Session, error)
	// FetchGuild returns guild metadata for id.
	FetchGuild(ctx context.Context, sess Session, id string) (Guild, error)
	// FetchChannels returns every channel in the guild, unfiltered.
	// ListTextChannels applies the type/permission filter.
	FetchChannels(ctx context.Context, sess Session, guildID string) ([]Channel, error)
	// FetchMessages returns at most one page (<=100) of messages for
	// channel, honoring opts.Before/After/Limit, ordered descending
	// by timestamp within the page.
	FetchMessages(ctx context.Context, sess Session, channelID string, opts FetchOptions) ([]Message, error)
}

// ListTextChannels returns the channels from FetchChannels that are
// text-capable, not of an excluded kind, and where the bot holds both
// "ViewChannel" and "ReadMessageHistory" — spec.md §4.B.
func ListTextChannels(ctx context.Context, svc ChatService, sess Session, guildID string) ([]Channel, error) {
	all, err := svc.FetchChannels(ctx, sess, guildID)
	if err != nil {
		return nil, err
	}

	var out []Channel
	for _, c := range all {
		if !textChannelTypes[c.Type] {
			continue
		}
		if c.Permissions != nil && (!c.Permissions.Has("ViewChannel") || !c.Permissions.Has("ReadMessageHistory")) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
