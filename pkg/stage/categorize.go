package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
)

type categorization struct {
	ID                 string   `json:"id"`
	PrimaryTopic       string   `json:"primary_topic"`
	SecondaryTopics    []string `json:"secondary_topics,omitempty"`
	Sentiment          string   `json:"sentiment"`
	Urgency            string   `json:"urgency"`
	MarketingRelevance string   `json:"marketing_relevance"`
}

type categorizeResponse struct {
	Categorizations []categorization `json:"categorizations"`
}

// RunCategorize categorizes messages that passed the filter stage and
// have no categorize row yet — spec.md §4.H.
func (e *Engine) RunCategorize(ctx context.Context, opts RunOptions) (Result, error) {
	kept, err := e.cfg.Store.GetProcessedMessages(ctx, store.StageFilter, true, 0)
	if err != nil {
		return Result{}, fmt.Errorf("stage: categorize: select filtered messages: %w", err)
	}
	candidates, err := filterOutAlreadyProcessed(ctx, e, kept, store.StageCategorize, opts)
	if err != nil {
		return Result{}, err
	}

	return e.runBatches(ctx, store.StageCategorize, candidates, prompt.TemplateCategorize, nil, opts.DryRun,
		func(batch []store.EnrichedMessage, raw string, result *Result) error {
			var resp categorizeResponse
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				return fmt.Errorf("decode categorize response: %w", err)
			}

			byID := make(map[string]categorization, len(resp.Categorizations))
			for _, c := range resp.Categorizations {
				byID[c.ID] = c
			}

			for _, m := range batch {
				c, ok := byID[m.ID]
				if !ok {
					continue
				}
				itemJSON, err := json.Marshal(c)
				if err != nil {
					return fmt.Errorf("encode categorization %s: %w", m.ID, err)
				}
				if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
					EntityType: store.EntityMessage, EntityID: m.ID, Stage: store.StageCategorize,
					ResultJSON: string(itemJSON), ModelUsed: e.cfg.Model, ChannelID: m.ChannelID,
				}); err != nil {
					return fmt.Errorf("persist categorization %s: %w", m.ID, err)
				}
				result.recordCounter("topic:" + c.PrimaryTopic)
				result.recordCounter("sentiment:" + c.Sentiment)
				result.recordCounter("relevance:" + c.MarketingRelevance)
			}
			return nil
		})
}

// filterOutAlreadyProcessed narrows candidates to those with no row
// yet for targetStage, applying opts.Force to bypass the check and
// opts.ChannelID/Limit as a secondary filter over the in-memory set
// (the source query already applied filter.keep==1).
func filterOutAlreadyProcessed(ctx context.Context, e *Engine, candidates []store.EnrichedMessage, targetStage string, opts RunOptions) ([]store.EnrichedMessage, error) {
	var out []store.EnrichedMessage
	for _, m := range candidates {
		if opts.ChannelID != "" && m.ChannelID != opts.ChannelID {
			continue
		}
		if opts.Start != nil && m.Timestamp.Before(*opts.Start) {
			continue
		}
		if opts.End != nil && !m.Timestamp.Before(*opts.End) {
			continue
		}
		should, err := e.cfg.Store.ShouldProcess(ctx, store.EntityMessage, m.ID, targetStage, store.ShouldProcessOptions{Force: opts.Force})
		if err != nil {
			return nil, fmt.Errorf("stage: should process %s: %w", m.ID, err)
		}
		if !should {
			continue
		}
		out = append(out, m)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}
