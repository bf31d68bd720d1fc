package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
)

type filterDecision struct {
	ID           string   `json:"id"`
	Keep         bool     `json:"keep"`
	Reason       string   `json:"reason,omitempty"`
	QualityScore *float64 `json:"quality_score,omitempty"`
}

type filterResponse struct {
	Decisions []filterDecision `json:"decisions"`
}

// RunFilter screens all messages with no filter row, writing one
// AIProcessing row per message keyed by its own id — spec.md §4.H.
func (e *Engine) RunFilter(ctx context.Context, opts RunOptions) (Result, error) {
	candidates, err := e.cfg.Store.GetUnprocessedMessages(ctx, store.StageFilter, store.MessageFilter{
		ChannelID: opts.ChannelID, Start: opts.Start, End: opts.End, Limit: opts.Limit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("stage: filter: select candidates: %w", err)
	}

	return e.runBatches(ctx, store.StageFilter, candidates, prompt.TemplateFilter, nil, opts.DryRun,
		func(batch []store.EnrichedMessage, raw string, result *Result) error {
			var resp filterResponse
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				return fmt.Errorf("decode filter response: %w", err)
			}

			byID := make(map[string]filterDecision, len(resp.Decisions))
			for _, d := range resp.Decisions {
				byID[d.ID] = d
			}

			for _, m := range batch {
				d, ok := byID[m.ID]
				if !ok {
					continue // model omitted this id; leave unprocessed, retried next run
				}
				itemJSON, err := json.Marshal(d)
				if err != nil {
					return fmt.Errorf("encode filter decision %s: %w", m.ID, err)
				}
				if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
					EntityType: store.EntityMessage, EntityID: m.ID, Stage: store.StageFilter,
					ResultJSON: string(itemJSON), ModelUsed: e.cfg.Model, ChannelID: m.ChannelID,
				}); err != nil {
					return fmt.Errorf("persist filter decision %s: %w", m.ID, err)
				}
				if d.Keep {
					result.recordCounter("kept")
				} else {
					result.recordCounter("discarded")
				}
			}
			return nil
		})
}
