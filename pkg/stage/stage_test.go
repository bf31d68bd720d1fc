package stage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discord-curator/curator/pkg/llm"
	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
	"github.com/discord-curator/curator/pkg/validator"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedMessage(t *testing.T, st *store.Store, id, channelID, content string, ts time.Time) {
	t.Helper()
	require.NoError(t, st.UpsertGuild(context.Background(), store.Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.UpsertChannel(context.Background(), store.Channel{ID: channelID, GuildID: "g1", Name: "general"}))
	require.NoError(t, st.UpsertUser(context.Background(), store.User{ID: "u1", Username: "alice"}))
	require.NoError(t, st.UpsertMessage(context.Background(), store.Message{
		ID: id, ChannelID: channelID, AuthorID: "u1", Content: content, Timestamp: ts,
	}))
}

func newEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	v, err := validator.New()
	require.NoError(t, err)

	eng := New(Config{
		Store:               st,
		LLM:                 llm.New(llm.Config{BaseURL: server.URL, Model: "test-model"}),
		Prompts:             prompt.New(),
		Validator:           v,
		Model:               "test-model",
		Concurrency:         2,
		MaxTokensPerBatch:   10000,
		MaxMessagesPerBatch: 50,
	})
	return eng, st
}

func jsonResponse(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}],"usage":{"prompt_tokens":5,"completion_tokens":5}}`, content)
	}
}

func TestRunFilter_WritesDecisionsAndCounters(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"decisions":[{"id":"m1","keep":true,"quality_score":0.9},{"id":"m2","keep":false,"reason":"spam"}]}`))

	now := time.Now().UTC()
	seedMessage(t, st, "m1", "c1", "great feature!", now)
	seedMessage(t, st, "m2", "c1", "gm", now.Add(time.Second))

	result, err := eng.RunFilter(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CandidateCount)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.Counters["kept"])
	assert.Equal(t, 1, result.Counters["discarded"])

	row, err := st.GetAIProcessing(context.Background(), store.EntityMessage, "m1", store.StageFilter)
	require.NoError(t, err)
	assert.Contains(t, row.ResultJSON, `"keep":true`)
}

func TestRunFilter_EmptyCandidatesShortCircuits(t *testing.T) {
	eng, _ := newEngine(t, jsonResponse(`{"decisions":[]}`))
	result, err := eng.RunFilter(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandidateCount)
	assert.Equal(t, 0, result.ProcessedCount)
}

func TestRunFilter_DryRunDoesNotCallLLMOrPersist(t *testing.T) {
	called := false
	eng, st := newEngine(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	seedMessage(t, st, "m1", "c1", "hello", time.Now())

	result, err := eng.RunFilter(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.False(t, called)

	_, err = st.GetAIProcessing(context.Background(), store.EntityMessage, "m1", store.StageFilter)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunCategorize_OnlyConsidersKeptMessages(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"categorizations":[{"id":"m1","primary_topic":"pricing","sentiment":"positive","urgency":"low","marketing_relevance":"high"}]}`))

	now := time.Now().UTC()
	seedMessage(t, st, "m1", "c1", "love the pricing", now)
	seedMessage(t, st, "m2", "c1", "discarded one", now.Add(time.Second))

	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityMessage, EntityID: "m1", Stage: store.StageFilter, ResultJSON: `{"keep":true}`,
	}))
	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityMessage, EntityID: "m2", Stage: store.StageFilter, ResultJSON: `{"keep":false}`,
	}))

	result, err := eng.RunCategorize(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CandidateCount)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.Counters["topic:pricing"])

	_, err = st.GetAIProcessing(context.Background(), store.EntityMessage, "m2", store.StageCategorize)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunFormat_RendersAndMemoizes(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{}`))
	seedMessage(t, st, "m1", "c1", "hi", time.Now())

	require.NoError(t, st.InsertMarketingExtract(context.Background(), store.MarketingExtract{
		ID: "e1", SourceType: store.EntityMessage, SourceID: "m1", ExtractType: store.ExtractQuote,
		Content: "This tool is great", Sentiment: store.SentimentPositive,
	}))

	result, err := eng.RunFormat(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)

	_, err = st.GetAIProcessing(context.Background(), store.EntityMessage, "m1", store.StageFormat)
	require.NoError(t, err)

	// a second run finds no unformatted candidates left
	result2, err := eng.RunFormat(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result2.CandidateCount)
}
