package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
)

type dailySummaryPayload struct {
	Headline          string   `json:"headline"`
	KeyPoints         []string `json:"key_points"`
	NotableMessages   []string `json:"notable_messages,omitempty"`
	Themes            []string `json:"themes,omitempty"`
	SentimentOverview string   `json:"sentiment_overview,omitempty"`
	ActionItems       []string `json:"action_items,omitempty"`
}

type summaryResponse struct {
	Summary dailySummaryPayload `json:"summary"`
}

// dayBounds returns the half-open [00:00Z, next day 00:00Z) range for
// the UTC calendar date of day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// RunSummarizeDaily produces one daily_summary AIProcessing row per
// channel for the UTC calendar day opts.Start falls on — spec.md
// §4.H "Summarize (daily)". opts.Start is required.
func (e *Engine) RunSummarizeDaily(ctx context.Context, guildID string, opts RunOptions) (Result, error) {
	if opts.Start == nil {
		return Result{}, fmt.Errorf("stage: summarize daily: opts.Start is required")
	}
	start, end := dayBounds(*opts.Start)
	dateKey := start.Format("2006-01-02")

	channels, err := e.cfg.Store.ListChannels(ctx, guildID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("stage: summarize daily: list channels: %w", err)
	}
	if opts.ChannelID != "" {
		channels = filterChannelsByID(channels, opts.ChannelID)
	}

	result := Result{Stage: store.StageSummarize}

	for _, ch := range channels {
		entityID := ch.ID + ":" + dateKey

		should, err := e.cfg.Store.ShouldProcess(ctx, store.EntityDailySummary, entityID, store.StageSummarize, store.ShouldProcessOptions{Force: opts.Force})
		if err != nil {
			return result, fmt.Errorf("stage: summarize daily: should process %s: %w", entityID, err)
		}
		if !should {
			result.SkippedCount++
			continue
		}

		messages, err := e.cfg.Store.GetKeptMessagesInRange(ctx, ch.ID, start, end)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Error: fmt.Sprintf("channel %s: %v", ch.ID, err)})
			continue
		}
		result.CandidateCount += len(messages)
		if len(messages) == 0 {
			continue
		}

		if opts.DryRun {
			result.ProcessedCount++
			continue
		}

		payload, err := renderMessages(messages, e.cfg.AnonymizeInPrompts)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
			continue
		}
		rendered, err := e.cfg.Prompts.Render(prompt.TemplateSummarize, map[string]any{
			"guild_name": guildID, "channel_name": ch.Name, "date": dateKey, "messages": payload,
		})
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
			continue
		}

		response, err := e.cfg.LLM.ProcessWithAI(ctx, store.StageSummarize, "", rendered)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
			continue
		}
		if err := e.cfg.Validator.Validate(store.StageSummarize, []byte(response)); err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
			continue
		}

		if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
			EntityType: store.EntityDailySummary, EntityID: entityID, Stage: store.StageSummarize,
			ResultJSON: response, ModelUsed: e.cfg.Model, GuildID: guildID, ChannelID: ch.ID, PeriodStart: dateKey,
		}); err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
			continue
		}
		result.ProcessedCount++
	}

	return result, nil
}

// weekStart returns the Monday (UTC, 00:00) of the week containing t.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}

// RunSummarizeWeekly aggregates all daily_summary rows for guildID
// whose period_start falls in the Monday-anchored week containing
// opts.Start, writing one weekly_summary row keyed "guildId:week:W" —
// spec.md §4.H "Summarize (weekly)".
func (e *Engine) RunSummarizeWeekly(ctx context.Context, guildID string, opts RunOptions) (Result, error) {
	if opts.Start == nil {
		return Result{}, fmt.Errorf("stage: summarize weekly: opts.Start is required")
	}
	w := weekStart(*opts.Start)
	weekKey := w.Format("2006-01-02")
	weekEnd := w.AddDate(0, 0, 6).Format("2006-01-02")
	entityID := guildID + ":week:" + weekKey

	result := Result{Stage: store.StageSummarize}

	should, err := e.cfg.Store.ShouldProcess(ctx, store.EntityWeeklySummary, entityID, store.StageSummarize, store.ShouldProcessOptions{Force: opts.Force})
	if err != nil {
		return result, fmt.Errorf("stage: summarize weekly: should process %s: %w", entityID, err)
	}
	if !should {
		result.SkippedCount++
		return result, nil
	}

	dailies, err := e.cfg.Store.GetDailySummariesInWeek(ctx, guildID, weekKey, weekEnd)
	if err != nil {
		return result, fmt.Errorf("stage: summarize weekly: %w", err)
	}
	result.CandidateCount = len(dailies)
	if len(dailies) == 0 {
		return result, nil
	}
	if opts.DryRun {
		result.ProcessedCount = 1
		return result, nil
	}

	summariesJSON, err := json.Marshal(extractDailyPayloads(dailies))
	if err != nil {
		return result, fmt.Errorf("stage: summarize weekly: marshal dailies: %w", err)
	}

	rendered, err := e.cfg.Prompts.Render(prompt.TemplateDailyRollup, map[string]any{
		"guild_name": guildID, "week_start": weekKey, "summaries": string(summariesJSON),
	})
	if err != nil {
		return result, fmt.Errorf("stage: summarize weekly: render: %w", err)
	}

	response, err := e.cfg.LLM.ProcessWithAI(ctx, store.StageSummarize, "", rendered)
	if err != nil {
		result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
		return result, nil
	}
	if err := e.cfg.Validator.Validate(store.StageSummarize, []byte(response)); err != nil {
		result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
		return result, nil
	}

	if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
		EntityType: store.EntityWeeklySummary, EntityID: entityID, Stage: store.StageSummarize,
		ResultJSON: response, ModelUsed: e.cfg.Model, GuildID: guildID, PeriodStart: weekKey,
	}); err != nil {
		result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{entityID}})
		return result, nil
	}
	result.ProcessedCount = 1
	return result, nil
}

func filterChannelsByID(channels []store.Channel, id string) []store.Channel {
	for _, c := range channels {
		if c.ID == id {
			return []store.Channel{c}
		}
	}
	return nil
}

func extractDailyPayloads(dailies []store.AIProcessing) []json.RawMessage {
	out := make([]json.RawMessage, len(dailies))
	for i, d := range dailies {
		out[i] = json.RawMessage(d.ResultJSON)
	}
	return out
}
