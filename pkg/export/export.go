// Package export renders scraped messages, channels, and AI summaries
// to JSON or CSV for the `export` CLI surface — spec.md §6.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/discord-curator/curator/pkg/store"
)

// Format selects the export CLI's output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Options configures what an export includes — spec.md §6 CLI flags.
type Options struct {
	Format             Format
	ChannelID          string
	Since              *time.Time
	Until              *time.Time
	IncludeEmbeds      bool
	IncludeAttachments bool
	IncludeReactions   bool
	Pretty             bool
}

// messageRecord is the flattened shape written to JSON/CSV for one
// exported message.
type messageRecord struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channel_id"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	ReactionCount int       `json:"reaction_count"`

	Embeds      []store.Embed      `json:"embeds,omitempty"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
	Reactions   []store.Reaction   `json:"reactions,omitempty"`
}

func toMessageRecord(m store.ExportMessage) messageRecord {
	name := m.AuthorGlobalName
	if name == "" {
		name = m.AuthorUsername
	}
	return messageRecord{
		ID:            m.ID,
		ChannelID:     m.ChannelID,
		AuthorID:      m.AuthorID,
		AuthorName:    name,
		Content:       m.Content,
		Timestamp:     m.Timestamp,
		ReactionCount: m.ReactionCount,
		Embeds:        m.Embeds,
		Attachments:   m.Attachments,
		Reactions:     m.Reactions,
	}
}

// Messages writes the messages matching opts to w — `export messages`.
func Messages(ctx context.Context, st *store.Store, w io.Writer, opts Options) (int, error) {
	messages, err := st.ExportMessages(ctx, store.ExportFilter{
		ChannelID: opts.ChannelID,
		Since:     opts.Since,
		Until:     opts.Until,
	}, opts.IncludeEmbeds, opts.IncludeAttachments, opts.IncludeReactions)
	if err != nil {
		return 0, fmt.Errorf("export: messages: %w", err)
	}

	records := make([]messageRecord, len(messages))
	for i, m := range messages {
		records[i] = toMessageRecord(m)
	}

	switch opts.Format {
	case FormatCSV:
		if err := writeMessagesCSV(w, records); err != nil {
			return 0, err
		}
	case FormatJSON, "":
		if err := writeJSON(w, records, opts.Pretty); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("export: unknown format %q", opts.Format)
	}
	return len(records), nil
}

func writeMessagesCSV(w io.Writer, records []messageRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "channel_id", "author_id", "author_name", "content", "timestamp", "reaction_count", "embed_count", "attachment_count"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID, r.ChannelID, r.AuthorID, r.AuthorName, r.Content,
			r.Timestamp.Format(time.RFC3339), fmt.Sprintf("%d", r.ReactionCount),
			fmt.Sprintf("%d", len(r.Embeds)), fmt.Sprintf("%d", len(r.Attachments)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// channelRecord is the flattened shape written for one channel.
type channelRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Topic                string `json:"topic,omitempty"`
	MessageCount         int    `json:"message_count"`
	LastScrapedMessageID string `json:"last_scraped_message_id,omitempty"`
}

// Channels writes all channels for guildID to w — `export channels`.
func Channels(ctx context.Context, st *store.Store, w io.Writer, guildID string, opts Options) (int, error) {
	channels, err := st.ListChannels(ctx, guildID, nil)
	if err != nil {
		return 0, fmt.Errorf("export: channels: %w", err)
	}

	records := make([]channelRecord, len(channels))
	for i, c := range channels {
		records[i] = channelRecord{
			ID: c.ID, Name: c.Name, Topic: c.Topic,
			MessageCount: c.MessageCount, LastScrapedMessageID: c.LastScrapedMessageID,
		}
	}

	switch opts.Format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"id", "name", "topic", "message_count", "last_scraped_message_id"}); err != nil {
			return 0, fmt.Errorf("export: write csv header: %w", err)
		}
		for _, r := range records {
			if err := cw.Write([]string{r.ID, r.Name, r.Topic, fmt.Sprintf("%d", r.MessageCount), r.LastScrapedMessageID}); err != nil {
				return 0, fmt.Errorf("export: write csv row %s: %w", r.ID, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, err
		}
	case FormatJSON, "":
		if err := writeJSON(w, records, opts.Pretty); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("export: unknown format %q", opts.Format)
	}
	return len(records), nil
}

// summaryRecord is the flattened shape written for one daily or
// weekly summary row.
type summaryRecord struct {
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	ChannelID   string          `json:"channel_id,omitempty"`
	PeriodStart string          `json:"period_start"`
	Summary     json.RawMessage `json:"summary"`
}

// Summary writes daily/weekly summaries for guildID in [since, until]
// to w — `export summary`.
func Summary(ctx context.Context, st *store.Store, w io.Writer, guildID string, opts Options) (int, error) {
	since, until := "0000-01-01", "9999-12-31"
	if opts.Since != nil {
		since = opts.Since.Format("2006-01-02")
	}
	if opts.Until != nil {
		until = opts.Until.Format("2006-01-02")
	}

	rows, err := st.ExportSummaries(ctx, guildID, since, until)
	if err != nil {
		return 0, fmt.Errorf("export: summary: %w", err)
	}

	records := make([]summaryRecord, len(rows))
	for i, r := range rows {
		records[i] = summaryRecord{
			EntityType: r.EntityType, EntityID: r.EntityID, ChannelID: r.ChannelID,
			PeriodStart: r.PeriodStart, Summary: json.RawMessage(r.ResultJSON),
		}
	}

	switch opts.Format {
	case FormatJSON, "":
		if err := writeJSON(w, records, opts.Pretty); err != nil {
			return 0, err
		}
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"entity_type", "entity_id", "channel_id", "period_start", "summary_json"}); err != nil {
			return 0, fmt.Errorf("export: write csv header: %w", err)
		}
		for _, r := range records {
			if err := cw.Write([]string{r.EntityType, r.EntityID, r.ChannelID, r.PeriodStart, string(r.Summary)}); err != nil {
				return 0, fmt.Errorf("export: write csv row %s: %w", r.EntityID, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("export: unknown format %q", opts.Format)
	}
	return len(records), nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}
