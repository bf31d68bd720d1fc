// Package tokenbudget estimates token counts and packs items into
// size- and count-bounded batches for a single LLM call — spec.md §4.C.
package tokenbudget

import (
	"encoding/json"
	"math"
)

// EstimateTokens approximates the token count of a string as
// ceil(len(s)/4) — spec.md §4.C, tested directly against
// TestableProperty #9.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / 4))
}

// EstimateTokensJSON approximates the token count of any JSON-encodable
// value as the token count of its JSON encoding.
func EstimateTokensJSON(v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return EstimateTokens(string(b)), nil
}

// Item is one unit of work fed into CreateBatches. Text is whatever
// payload the caller wants estimated; Tokens may be pre-computed by the
// caller (e.g. from a richer JSON encoding than Text alone) and, when
// non-zero, takes precedence over re-estimating from Text.
type Item struct {
	Tokens int
	Text   string
}

func (it Item) tokenCount() int {
	if it.Tokens > 0 {
		return it.Tokens
	}
	return EstimateTokens(it.Text)
}

// BatchOptions bounds a single LLM call.
type BatchOptions struct {
	MaxTokensPerBatch   int
	MaxMessagesPerBatch int
}

// CreateBatches performs a single greedy pass over items, preserving
// input order within and across batches. If adding the next item would
// push the current (non-empty) batch past either cap, the current
// batch is emitted and a new one started. An item that alone exceeds a
// cap is placed alone in its own batch (spec.md §8 Testable Property
// #4) rather than looping forever trying to fit it alongside others.
func CreateBatches[T any](items []T, toItem func(T) Item, opts BatchOptions) [][]T {
	if len(items) == 0 {
		return nil
	}

	var batches [][]T
	var current []T
	var currentTokens int

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, it := range items {
		tokens := toItem(it).tokenCount()

		exceedsTokens := opts.MaxTokensPerBatch > 0 && currentTokens+tokens > opts.MaxTokensPerBatch
		exceedsCount := opts.MaxMessagesPerBatch > 0 && len(current)+1 > opts.MaxMessagesPerBatch

		if len(current) > 0 && (exceedsTokens || exceedsCount) {
			flush()
		}

		current = append(current, it)
		currentTokens += tokens
	}
	flush()

	return batches
}

// Usage records input/output token counts for one LLM call, as
// reported by the provider's usage accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Prices is the parametric per-token cost for a model, supplied from
// config (spec.md §4.C: "domain values supplied as config").
type Prices struct {
	InputPricePerToken  float64
	OutputPricePerToken float64
}

// EstimateCost computes input-price*in_tokens + output-price*out_tokens
// across any number of usage records.
func EstimateCost(prices Prices, usages ...Usage) float64 {
	var total float64
	for _, u := range usages {
		total += prices.InputPricePerToken*float64(u.InputTokens) + prices.OutputPricePerToken*float64(u.OutputTokens)
	}
	return total
}
