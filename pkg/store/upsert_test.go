package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedGuildChannelUser(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertGuild(ctx, Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.UpsertChannel(ctx, Channel{ID: "c1", GuildID: "g1", Name: "general"}))
	require.NoError(t, st.UpsertUser(ctx, User{ID: "u1", Username: "alice"}))
}

// TestableProperty #1: re-applying the same upsert multiple times
// leaves exactly one row and converges on the latest values.
func TestUpsertGuild_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertGuild(ctx, Guild{ID: "g1", Name: "First Name", MemberCount: 10}))
	require.NoError(t, st.UpsertGuild(ctx, Guild{ID: "g1", Name: "First Name", MemberCount: 10}))
	require.NoError(t, st.UpsertGuild(ctx, Guild{ID: "g1", Name: "Renamed Guild", MemberCount: 20}))

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guilds WHERE id = ?`, "g1").Scan(&count))
	assert.Equal(t, 1, count)

	var name string
	var members int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT name, member_count FROM guilds WHERE id = ?`, "g1").Scan(&name, &members))
	assert.Equal(t, "Renamed Guild", name)
	assert.Equal(t, 20, members)
}

func TestUpsertChannel_IsIdempotentAndPreservesScrapeCursor(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertGuild(ctx, Guild{ID: "g1", Name: "Guild"}))

	require.NoError(t, st.UpsertChannel(ctx, Channel{ID: "c1", GuildID: "g1", Name: "general"}))
	require.NoError(t, st.UpdateChannelLastScraped(ctx, "c1", "100", 5))

	// Re-upserting the channel (as a later scrape pass would, to
	// refresh its name/topic) must not clobber the resume cursor.
	require.NoError(t, st.UpsertChannel(ctx, Channel{ID: "c1", GuildID: "g1", Name: "general-renamed"}))

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE id = ?`, "c1").Scan(&count))
	assert.Equal(t, 1, count)

	ch, err := st.Channel(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "general-renamed", ch.Name)
	assert.Equal(t, "100", ch.LastScrapedMessageID, "upserting a channel must not reset its scrape cursor")
}

func TestUpsertMessage_IsIdempotentAndPreservesOriginalTimestamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedGuildChannelUser(t, st)

	original := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertMessage(ctx, Message{
		ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hello", Timestamp: original,
	}))
	// Re-encountering the same message on a later scrape, with an
	// edited body and a (deliberately different, implausible)
	// timestamp, must update content but never rewrite Timestamp.
	laterButWrong := original.Add(time.Hour)
	require.NoError(t, st.UpsertMessage(ctx, Message{
		ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hello (edited)", Timestamp: laterButWrong,
	}))

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ?`, "m1").Scan(&count))
	assert.Equal(t, 1, count)

	var content string
	var ts time.Time
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT content, timestamp FROM messages WHERE id = ?`, "m1").Scan(&content, &ts))
	assert.Equal(t, "hello (edited)", content)
	assert.True(t, ts.Equal(original), "timestamp must never be rewritten on re-upsert")
}

func TestUpsertReaction_IsIdempotentPerMessageAndEmoji(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedGuildChannelUser(t, st)
	require.NoError(t, st.UpsertMessage(ctx, Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: time.Now()}))

	require.NoError(t, st.UpsertReaction(ctx, Reaction{MessageID: "m1", Emoji: "👍", Count: 1}))
	require.NoError(t, st.UpsertReaction(ctx, Reaction{MessageID: "m1", Emoji: "👍", Count: 3}))

	var count, total int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(count) FROM reactions WHERE message_id = ?`, "m1").Scan(&count, &total))
	assert.Equal(t, 1, count)
	assert.Equal(t, 3, total)
}

// TestableProperty #8: deleting a channel cascades to its messages and
// every message child table.
func TestDeleteChannel_CascadesToMessagesAndChildren(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedGuildChannelUser(t, st)

	require.NoError(t, st.UpsertMessage(ctx, Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: time.Now()}))
	require.NoError(t, st.UpsertEmbed(ctx, Embed{MessageID: "m1", Title: "link"}))
	require.NoError(t, st.UpsertAttachment(ctx, Attachment{ID: "a1", MessageID: "m1", Filename: "f.png"}))
	require.NoError(t, st.UpsertReaction(ctx, Reaction{MessageID: "m1", Emoji: "👍", Count: 1}))

	require.NoError(t, st.DeleteChannel(ctx, "c1"))

	for table, where := range map[string]string{
		"messages":    "channel_id = 'c1'",
		"embeds":      "message_id = 'm1'",
		"attachments": "message_id = 'm1'",
		"reactions":   "message_id = 'm1'",
	} {
		var count int
		require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+where).Scan(&count))
		assert.Equalf(t, 0, count, "expected %s to be cascade-deleted with its channel", table)
	}

	_, err := st.Channel(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertAttachment_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedGuildChannelUser(t, st)
	require.NoError(t, st.UpsertMessage(ctx, Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "hi", Timestamp: time.Now()}))

	require.NoError(t, st.UpsertAttachment(ctx, Attachment{ID: "a1", MessageID: "m1", Filename: "first.png", Size: 10}))
	require.NoError(t, st.UpsertAttachment(ctx, Attachment{ID: "a1", MessageID: "m1", Filename: "renamed.png", Size: 20}))

	var count int
	var filename string
	var size int64
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(filename), MAX(size) FROM attachments WHERE id = ?`, "a1").Scan(&count, &filename, &size))
	assert.Equal(t, 1, count)
	assert.Equal(t, "renamed.png", filename)
	assert.Equal(t, int64(20), size)
}

func TestUpsertUser_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertUser(ctx, User{ID: "u1", Username: "alice"}))
	require.NoError(t, st.UpsertUser(ctx, User{ID: "u1", Username: "alice2"}))

	var count int
	var username string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(username) FROM users WHERE id = ?`, "u1").Scan(&count, &username))
	assert.Equal(t, 1, count)
	assert.Equal(t, "alice2", username)
}
