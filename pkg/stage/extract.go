package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
)

type extractItem struct {
	ID                 string   `json:"id"`
	SourceMessageID    string   `json:"source_message_id,omitempty"`
	Type               string   `json:"type"`
	Content            string   `json:"content"`
	Context            string   `json:"context,omitempty"`
	RelevanceScore     *float64 `json:"relevance_score,omitempty"`
	RequiresPermission *bool    `json:"requires_permission,omitempty"`
}

type extractResponse struct {
	Extracts []extractItem `json:"extracts"`
}

// subExtractor defines one of the three independent extract.md §4.H
// sub-extractors and its type-specific defaults.
type subExtractor struct {
	extractType        string
	defaultSentiment   string
	requiresPermission bool
}

var subExtractors = []subExtractor{
	{extractType: store.ExtractQuote, defaultSentiment: store.SentimentPositive, requiresPermission: true},
	{extractType: store.ExtractAnnouncement, defaultSentiment: store.SentimentNeutral, requiresPermission: false},
	{extractType: store.ExtractFAQ, defaultSentiment: store.SentimentNeutral, requiresPermission: true},
}

// RunExtract runs the three sub-extractors (quote, announcement, faq)
// in sequence against the shared candidate set; an error in one does
// not stop the others — spec.md §4.H.
func (e *Engine) RunExtract(ctx context.Context, opts RunOptions) (Result, error) {
	raw, err := e.cfg.Store.GetExtractCandidates(ctx, 0)
	if err != nil {
		return Result{}, fmt.Errorf("stage: extract: select candidates: %w", err)
	}
	candidates, err := filterOutAlreadyProcessed(ctx, e, raw, store.StageExtract, opts)
	if err != nil {
		return Result{}, fmt.Errorf("stage: extract: %w", err)
	}

	combined := Result{Stage: store.StageExtract, CandidateCount: len(candidates)}
	for _, sub := range subExtractors {
		res, err := e.runSubExtractor(ctx, sub, candidates, opts)
		if err != nil {
			combined.Errors = append(combined.Errors, BatchError{Error: fmt.Sprintf("%s: %v", sub.extractType, err)})
			continue
		}
		combined.ProcessedCount += res.ProcessedCount
		combined.Errors = append(combined.Errors, res.Errors...)
		for k, v := range res.Counters {
			for n := 0; n < v; n++ {
				combined.recordCounter(k)
			}
		}
	}
	return combined, nil
}

func (e *Engine) runSubExtractor(ctx context.Context, sub subExtractor, candidates []store.EnrichedMessage, opts RunOptions) (Result, error) {
	vars := map[string]any{"extract_type": sub.extractType}

	return e.runBatches(ctx, store.StageExtract, candidates, prompt.TemplateExtract, vars, opts.DryRun,
		func(batch []store.EnrichedMessage, raw string, result *Result) error {
			var resp extractResponse
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				return fmt.Errorf("decode extract response: %w", err)
			}

			byMsgID := make(map[string]store.EnrichedMessage, len(batch))
			for _, m := range batch {
				byMsgID[m.ID] = m
			}

			for _, item := range resp.Extracts {
				if item.Type != sub.extractType {
					continue
				}
				src, ok := byMsgID[item.SourceMessageID]
				if !ok {
					continue
				}

				sentiment := sub.defaultSentiment
				relevance := 0.5
				if item.RelevanceScore != nil {
					relevance = *item.RelevanceScore
				}
				requiresPermission := sub.requiresPermission
				if item.RequiresPermission != nil {
					requiresPermission = *item.RequiresPermission
				}

				if err := e.cfg.Store.InsertMarketingExtract(ctx, store.MarketingExtract{
					ID:                 uuid.NewString(),
					SourceType:         store.EntityMessage,
					SourceID:           src.ID,
					ExtractType:        sub.extractType,
					Content:            item.Content,
					RelevanceScore:     relevance,
					Sentiment:          sentiment,
					RequiresPermission: requiresPermission,
				}); err != nil {
					return fmt.Errorf("persist extract for message %s: %w", src.ID, err)
				}
				result.recordCounter("extract:" + sub.extractType)
			}

			// All three sub-extractors share the single "extract"
			// memoization key (the AIProcessing stage enum has no
			// per-subtype slot). All three receive the same
			// candidates, so each writes this row for a message and
			// the last to run wins. RunExtract pre-filters candidates
			// against this same key, so a marked message is not
			// submitted again on a later run unless Force is set.
			for _, m := range batch {
				if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
					EntityType: store.EntityMessage, EntityID: m.ID, Stage: store.StageExtract,
					ResultJSON: fmt.Sprintf(`{"sub_extractor":%q}`, sub.extractType),
					ModelUsed:  e.cfg.Model, ChannelID: m.ChannelID,
				}); err != nil {
					return fmt.Errorf("persist extract memoization %s: %w", m.ID, err)
				}
			}
			return nil
		})
}
