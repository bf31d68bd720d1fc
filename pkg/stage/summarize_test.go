package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discord-curator/curator/pkg/store"
)

func keepMessage(t *testing.T, st *store.Store, id, channelID, content string, ts time.Time) {
	t.Helper()
	seedMessage(t, st, id, channelID, content, ts)
	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityMessage, EntityID: id, Stage: store.StageFilter, ResultJSON: `{"keep":true}`,
	}))
}

func TestRunSummarizeDaily_WritesOnePerChannel(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"Busy day","key_points":["shipped v2"]}}`))

	day := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	keepMessage(t, st, "m1", "c1", "shipping v2 today", day)

	result, err := eng.RunSummarizeDaily(context.Background(), "g1", RunOptions{Start: &day})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.CandidateCount)

	row, err := st.GetAIProcessing(context.Background(), store.EntityDailySummary, "c1:2026-06-15", store.StageSummarize)
	require.NoError(t, err)
	assert.Contains(t, row.ResultJSON, "Busy day")
}

func TestRunSummarizeDaily_NoMessagesInRangeSkipsChannel(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"unused"}}`))

	require.NoError(t, st.UpsertGuild(context.Background(), store.Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.UpsertChannel(context.Background(), store.Channel{ID: "c1", GuildID: "g1", Name: "general"}))

	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	result, err := eng.RunSummarizeDaily(context.Background(), "g1", RunOptions{Start: &day})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Equal(t, 0, result.CandidateCount)
}

func TestRunSummarizeDaily_SecondRunSkipsAlreadyProcessedChannel(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"Busy day","key_points":["said hello"]}}`))

	day := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	keepMessage(t, st, "m1", "c1", "hello", day)

	_, err := eng.RunSummarizeDaily(context.Background(), "g1", RunOptions{Start: &day})
	require.NoError(t, err)

	result, err := eng.RunSummarizeDaily(context.Background(), "g1", RunOptions{Start: &day})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestRunSummarizeDaily_RequiresStart(t *testing.T) {
	eng, _ := newEngine(t, jsonResponse(`{}`))
	_, err := eng.RunSummarizeDaily(context.Background(), "g1", RunOptions{})
	assert.Error(t, err)
}

func TestRunSummarizeWeekly_AggregatesDailySummariesInWeek(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"Weekly roundup","key_points":["great week"]}}`))

	require.NoError(t, st.UpsertGuild(context.Background(), store.Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.UpsertChannel(context.Background(), store.Channel{ID: "c1", GuildID: "g1", Name: "general"}))

	// Monday 2026-06-15 through Wednesday 2026-06-17, same week.
	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityDailySummary, EntityID: "c1:2026-06-15", Stage: store.StageSummarize,
		ResultJSON: `{"summary":{"headline":"Mon"}}`, GuildID: "g1", ChannelID: "c1", PeriodStart: "2026-06-15",
	}))
	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityDailySummary, EntityID: "c1:2026-06-17", Stage: store.StageSummarize,
		ResultJSON: `{"summary":{"headline":"Wed"}}`, GuildID: "g1", ChannelID: "c1", PeriodStart: "2026-06-17",
	}))

	start := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC) // Tuesday, same week as both dailies
	result, err := eng.RunSummarizeWeekly(context.Background(), "g1", RunOptions{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CandidateCount)
	assert.Equal(t, 1, result.ProcessedCount)

	row, err := st.GetAIProcessing(context.Background(), store.EntityWeeklySummary, "g1:week:2026-06-15", store.StageSummarize)
	require.NoError(t, err)
	assert.Contains(t, row.ResultJSON, "Weekly roundup")
}

func TestRunSummarizeWeekly_NoDailySummariesIsNoop(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"unused"}}`))
	require.NoError(t, st.UpsertGuild(context.Background(), store.Guild{ID: "g1", Name: "Guild"}))

	start := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)
	result, err := eng.RunSummarizeWeekly(context.Background(), "g1", RunOptions{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandidateCount)
	assert.Equal(t, 0, result.ProcessedCount)
}

func TestRunSummarizeWeekly_SecondRunSkips(t *testing.T) {
	eng, st := newEngine(t, jsonResponse(`{"summary":{"headline":"Weekly","key_points":["quiet week"]}}`))
	require.NoError(t, st.UpsertGuild(context.Background(), store.Guild{ID: "g1", Name: "Guild"}))
	require.NoError(t, st.WriteAIProcessing(context.Background(), store.AIProcessing{
		EntityType: store.EntityDailySummary, EntityID: "c1:2026-06-15", Stage: store.StageSummarize,
		ResultJSON: `{"summary":{"headline":"Mon"}}`, GuildID: "g1", PeriodStart: "2026-06-15",
	}))

	start := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)
	_, err := eng.RunSummarizeWeekly(context.Background(), "g1", RunOptions{Start: &start})
	require.NoError(t, err)

	result, err := eng.RunSummarizeWeekly(context.Background(), "g1", RunOptions{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Equal(t, 1, result.SkippedCount)
}
