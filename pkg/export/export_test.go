package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discord-curator/curator/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedGuildWithMessages(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertGuild(ctx, store.Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.UpsertChannel(ctx, store.Channel{ID: "c1", GuildID: "g1", Name: "general"}))
	require.NoError(t, st.UpsertUser(ctx, store.User{ID: "u1", Username: "alice"}))
	require.NoError(t, st.UpsertMessage(ctx, store.Message{
		ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hello, world", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.UpsertMessage(ctx, store.Message{
		ID: "m2", ChannelID: "c1", AuthorID: "u1", Content: "second message", Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.UpsertEmbed(ctx, store.Embed{MessageID: "m1", Title: "link"}))
	require.NoError(t, st.UpsertReaction(ctx, store.Reaction{MessageID: "m1", Emoji: "👍", Count: 2}))
}

func TestMessages_JSONIncludesChildRowsWhenRequested(t *testing.T) {
	st := newTestStore(t)
	seedGuildWithMessages(t, st)

	var buf bytes.Buffer
	n, err := Messages(context.Background(), st, &buf, Options{
		Format: FormatJSON, IncludeEmbeds: true, IncludeReactions: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var records []messageRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ID)
	assert.Len(t, records[0].Embeds, 1)
	assert.Len(t, records[0].Reactions, 1)
	assert.Empty(t, records[1].Embeds)
}

func TestMessages_CSVHasHeaderAndOneRowPerMessage(t *testing.T) {
	st := newTestStore(t)
	seedGuildWithMessages(t, st)

	var buf bytes.Buffer
	n, err := Messages(context.Background(), st, &buf, Options{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 messages
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "m1", rows[1][0])
}

func TestMessages_SinceFiltersOutEarlierMessages(t *testing.T) {
	st := newTestStore(t)
	seedGuildWithMessages(t, st)

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	n, err := Messages(context.Background(), st, &buf, Options{Format: FormatJSON, Since: &since})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChannels_ListsChannelsForGuild(t *testing.T) {
	st := newTestStore(t)
	seedGuildWithMessages(t, st)

	var buf bytes.Buffer
	n, err := Channels(context.Background(), st, &buf, "g1", Options{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var records []channelRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	assert.Equal(t, "general", records[0].Name)
}

func TestSummary_ReturnsRowsWithinRange(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedGuildWithMessages(t, st)

	require.NoError(t, st.WriteAIProcessing(ctx, store.AIProcessing{
		EntityType: store.EntityDailySummary, EntityID: "c1:2026-01-01", Stage: store.StageSummarize,
		ResultJSON: `{"headline":"busy day"}`, GuildID: "g1", ChannelID: "c1", PeriodStart: "2026-01-01",
	}))

	var buf bytes.Buffer
	n, err := Summary(ctx, st, &buf, "g1", Options{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "busy day")
}

func TestSummary_UnknownFormatErrors(t *testing.T) {
	st := newTestStore(t)
	var buf bytes.Buffer
	_, err := Summary(context.Background(), st, &buf, "g1", Options{Format: "xml"})
	assert.Error(t, err)
}
