// Package stage implements the pipeline stage engine — spec.md §4.H.
// Stages run in the fixed order filter -> categorize -> summarize ->
// extract -> format, each selecting candidate entities, batching them
// through the LLM driver, validating responses, and persisting
// per-item results idempotently keyed by (entity_type, entity_id,
// stage).
package stage

import "time"

// RunOptions parameterizes one stage invocation — spec.md §4.H's
// `run(store, {channelId?, start?, end?, limit?, force, dryRun, ...})`.
type RunOptions struct {
	ChannelID string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Force     bool
	DryRun    bool
}

// BatchError records one failed batch without aborting the run —
// spec.md §4.H "Failure semantics: at batch granularity".
type BatchError struct {
	BatchIndex int
	Error      string
	IDs        []string
}

// Result aggregates the outcome of one stage run.
type Result struct {
	Stage          string
	CandidateCount int
	ProcessedCount int
	SkippedCount   int // already processed (memoization row present)
	Counters       map[string]int
	Errors         []BatchError
	DryRun         bool
}

func (r *Result) recordCounter(key string) {
	if r.Counters == nil {
		r.Counters = make(map[string]int)
	}
	r.Counters[key]++
}
