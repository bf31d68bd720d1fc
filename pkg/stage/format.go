package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/discord-curator/curator/pkg/store"
)

// RunFormat renders formatted_content for marketing extracts with no
// format-stage AIProcessing row yet for their source message. Unlike
// the other stages, format is a deterministic, template-based pass —
// no LLM call, no validation — so it runs synchronously rather than
// through the batch dispatcher.
func (e *Engine) RunFormat(ctx context.Context, opts RunOptions) (Result, error) {
	extracts, err := e.cfg.Store.GetUnformattedExtracts(ctx, opts.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("stage: format: select candidates: %w", err)
	}

	result := Result{Stage: store.StageFormat, CandidateCount: len(extracts)}
	if len(extracts) == 0 {
		return result, nil
	}
	if opts.DryRun {
		result.DryRun = true
		result.ProcessedCount = len(extracts)
		return result, nil
	}

	for _, ex := range extracts {
		formatted := formatExtract(ex)
		if err := e.cfg.Store.UpdateExtractFormattedContent(ctx, ex.ID, formatted); err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{ex.ID}})
			continue
		}
		if err := e.cfg.Store.WriteAIProcessing(ctx, store.AIProcessing{
			EntityType: store.EntityMessage, EntityID: ex.SourceID, Stage: store.StageFormat,
			ResultJSON: fmt.Sprintf(`{"extract_id":%q}`, ex.ID), ModelUsed: "none",
		}); err != nil {
			result.Errors = append(result.Errors, BatchError{Error: err.Error(), IDs: []string{ex.ID}})
			continue
		}
		result.recordCounter("formatted:" + ex.ExtractType)
		result.ProcessedCount++
	}
	return result, nil
}

// formatExtract renders a type-specific, publish-ready text block for
// one marketing extract. Plain string templates rather than an LLM
// call: the content itself was already generated by the extract
// stage, this only adds presentation.
func formatExtract(e store.MarketingExtract) string {
	var sb strings.Builder
	switch e.ExtractType {
	case store.ExtractQuote:
		sb.WriteString("> ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	case store.ExtractAnnouncement:
		sb.WriteString("**Announcement:** ")
		sb.WriteString(e.Content)
	case store.ExtractFAQ:
		sb.WriteString("**Q&A:** ")
		sb.WriteString(e.Content)
	default:
		sb.WriteString(e.Content)
	}
	if len(e.Topics) > 0 {
		sb.WriteString("\n\nTopics: ")
		sb.WriteString(strings.Join(e.Topics, ", "))
	}
	return sb.String()
}
