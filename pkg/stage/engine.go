package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/discord-curator/curator/pkg/anonymizer"
	"github.com/discord-curator/curator/pkg/llm"
	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/store"
	"github.com/discord-curator/curator/pkg/tokenbudget"
	"github.com/discord-curator/curator/pkg/validator"
)

// Config wires an Engine's collaborators — spec.md §4.H's common
// stage body depends on the store, the LLM driver, the prompt
// builder, and the validator; everything else (batching caps,
// anonymization toggle, concurrency) is per-run policy.
type Config struct {
	Store               *store.Store
	LLM                 *llm.Client
	Prompts             *prompt.Builder
	Validator           *validator.Validator
	Model               string
	AnonymizeInPrompts  bool
	Concurrency         int
	MaxTokensPerBatch   int
	MaxMessagesPerBatch int
	Logger              *slog.Logger
}

// Engine runs pipeline stages in the fixed order filter -> categorize
// -> summarize -> extract -> format.
type Engine struct {
	cfg Config
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) batchOptions() tokenbudget.BatchOptions {
	return tokenbudget.BatchOptions{
		MaxTokensPerBatch:   e.cfg.MaxTokensPerBatch,
		MaxMessagesPerBatch: e.cfg.MaxMessagesPerBatch,
	}
}

// messagePayload is the per-message shape embedded into prompts.
type messagePayload struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Content  string `json:"content"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Reacts   int    `json:"reaction_count,omitempty"`
	HasEmbed bool   `json:"has_embeds,omitempty"`
}

// renderMessages optionally anonymizes candidates, then returns the
// JSON payload text for the prompt. The anonymizer is scoped to one
// batch/prompt, never shared across batches — spec.md §4.G.
func renderMessages(messages []store.EnrichedMessage, anonymize bool) (string, error) {
	anon := anonymizer.New()

	payload := make([]messagePayload, 0, len(messages))
	for _, m := range messages {
		author := m.AuthorUsername
		content := m.Content
		if anonymize {
			anonMsgs := anon.AnonymizeMessages([]anonymizer.AnonymizableMessage{{
				ID: m.ID,
				Author: anonymizer.AnonymizableAuthor{
					ID: m.AuthorID, Username: m.AuthorUsername, GlobalName: m.AuthorGlobalName,
				},
				Content: m.Content,
			}}, anonymizer.AnonymizeOptions{AnonymizeContent: true})
			author = anonMsgs[0].Author.Username
			content = anonMsgs[0].Content
		}
		payload = append(payload, messagePayload{
			ID: m.ID, Author: author, Content: content,
			IsBot: m.AuthorIsBot, Reacts: m.ReactionCount, HasEmbed: m.HasEmbeds,
		})
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("stage: marshal message payload: %w", err)
	}
	return string(b), nil
}

// runBatches is the shared batch-dispatch loop used by filter,
// categorize, and extract: it packs candidates, renders one prompt
// per batch, calls the LLM, validates the response, and hands the raw
// response body to apply for per-item persistence. apply runs inside
// the dispatcher's worker pool and must be safe for concurrent
// invocation (it is — every write goes through Store, which
// serializes internally).
func (e *Engine) runBatches(
	ctx context.Context,
	stage string,
	candidates []store.EnrichedMessage,
	templateName string,
	vars map[string]any,
	dryRun bool,
	apply func(batch []store.EnrichedMessage, rawResponse string, result *Result) error,
) (Result, error) {
	result := Result{Stage: stage, CandidateCount: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	batches := tokenbudget.CreateBatches(candidates, func(m store.EnrichedMessage) tokenbudget.Item {
		return tokenbudget.Item{Text: m.Content}
	}, e.batchOptions())

	if dryRun {
		result.DryRun = true
		result.ProcessedCount = len(candidates)
		return result, nil
	}

	// Each job writes only into its own slot of batchResults — never
	// the shared result — so concurrent workers never contend on the
	// same map/slice. The main goroutine merges slots serially below,
	// after dispatch returns.
	batchResults := make([]Result, len(batches))

	jobs := make([]batchJob, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		jobs[i] = batchJob{index: i, run: func(ctx context.Context) error {
			payload, err := renderMessages(batch, e.cfg.AnonymizeInPrompts)
			if err != nil {
				return err
			}

			renderVars := map[string]any{"messages": payload}
			for k, v := range vars {
				renderVars[k] = v
			}
			rendered, err := e.cfg.Prompts.Render(templateName, renderVars)
			if err != nil {
				return err
			}

			response, err := e.cfg.LLM.ProcessWithAI(ctx, stage, "", rendered)
			if err != nil {
				return err
			}
			if err := e.cfg.Validator.Validate(stage, []byte(response)); err != nil {
				return err
			}

			return apply(batch, response, &batchResults[i])
		}}
	}

	errs := dispatch(ctx, jobs, e.cfg.Concurrency)
	for i, err := range errs {
		if err != nil {
			ids := make([]string, len(batches[i]))
			for j, m := range batches[i] {
				ids[j] = m.ID
			}
			result.Errors = append(result.Errors, BatchError{BatchIndex: i, Error: err.Error(), IDs: ids})
			e.cfg.Logger.Warn("stage batch failed", "stage", stage, "batch", i, "error", err)
			continue
		}
		result.ProcessedCount += len(batches[i])
		for k, v := range batchResults[i].Counters {
			for n := 0; n < v; n++ {
				result.recordCounter(k)
			}
		}
	}

	return result, nil
}
