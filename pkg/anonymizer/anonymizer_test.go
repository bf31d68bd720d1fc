package anonymizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlias_StableWithinOneInstance(t *testing.T) {
	a := New()
	first := a.Alias("kate")
	second := a.Alias("kate")
	assert.Equal(t, first, second)
}

func TestAlias_DistinctUsernamesNeverCollide(t *testing.T) {
	a := New()
	aliasA := a.Alias("kate")
	aliasB := a.Alias("sam")
	assert.NotEqual(t, aliasA, aliasB)
}

func TestAlias_SequenceWrapsPastZ(t *testing.T) {
	a := New()
	var last string
	for i := 0; i < 27; i++ {
		last = a.Alias(string(rune('a' + i%26)) + string(rune(i)))
	}
	assert.Equal(t, "User_A1", last)
}

func TestReset_ClearsAllocatedAliases(t *testing.T) {
	a := New()
	first := a.Alias("kate")
	a.Reset()
	second := a.Alias("kate")
	assert.Equal(t, first, second, "both allocations are the first alias in a fresh sequence")
}

func TestAnonymizeMessages_RewritesAuthorAndMentions(t *testing.T) {
	a := New()
	messages := []AnonymizableMessage{
		{
			ID:      "m1",
			Author:  AnonymizableAuthor{ID: "1234567890123", Username: "kate", GlobalName: "Kate W"},
			Content: "thanks @kate for the help",
		},
		{
			ID:      "m2",
			Author:  AnonymizableAuthor{ID: "9999999999999", Username: "sam"},
			Content: "agreed, @kate nailed it",
		},
	}

	out := a.AnonymizeMessages(messages, AnonymizeOptions{AnonymizeContent: true})
	require.Len(t, out, 2)

	assert.Equal(t, "m1", out[0].ID, "message id is never anonymized")
	assert.Equal(t, "User_A", out[0].Author.Username)
	assert.Equal(t, "User_A", out[0].Author.GlobalName)
	assert.Equal(t, "anon_0123", out[0].Author.ID)
	assert.Contains(t, out[0].Content, "@User_A")
	assert.NotContains(t, out[0].Content, "@kate")

	assert.Equal(t, "User_B", out[1].Author.Username)
	assert.Contains(t, out[1].Content, "@User_A", "mention of an already-aliased author is rewritten")
}

func TestAnonymizeMessages_ContentUntouchedWhenDisabled(t *testing.T) {
	a := New()
	messages := []AnonymizableMessage{
		{ID: "m1", Author: AnonymizableAuthor{ID: "1", Username: "kate"}, Content: "hi @kate"},
	}
	out := a.AnonymizeMessages(messages, AnonymizeOptions{AnonymizeContent: false})
	assert.Equal(t, "hi @kate", out[0].Content)
	assert.Equal(t, "User_A", out[0].Author.Username, "author fields are always anonymized")
}

func TestAnonymizeMessages_ShortAuthorIDKeptWhole(t *testing.T) {
	a := New()
	messages := []AnonymizableMessage{
		{ID: "m1", Author: AnonymizableAuthor{ID: "12", Username: "kate"}},
	}
	out := a.AnonymizeMessages(messages, AnonymizeOptions{})
	assert.Equal(t, "anon_12", out[0].Author.ID)
}
