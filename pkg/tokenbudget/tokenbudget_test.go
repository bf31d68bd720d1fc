package tokenbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens_CeilsLengthOverFour(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(stringOfLen(97)))
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestEstimateTokensJSON_MatchesEncodedLength(t *testing.T) {
	n, err := EstimateTokensJSON(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, EstimateTokens(`{"a":"b"}`), n)
}

func TestCreateBatches_EmptyInputReturnsNil(t *testing.T) {
	batches := CreateBatches([]string{}, func(s string) Item { return Item{Text: s} }, BatchOptions{})
	assert.Nil(t, batches)
}

func TestCreateBatches_PacksUnderTokenCap(t *testing.T) {
	items := []string{"aaaa", "bbbb", "cccc"} // 1 token each
	batches := CreateBatches(items, func(s string) Item { return Item{Text: s} }, BatchOptions{MaxTokensPerBatch: 2})
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"aaaa", "bbbb"}, batches[0])
	assert.Equal(t, []string{"cccc"}, batches[1])
}

func TestCreateBatches_RespectsMessageCountCap(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	batches := CreateBatches(items, func(s string) Item { return Item{Text: s} }, BatchOptions{MaxMessagesPerBatch: 2})
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
}

func TestCreateBatches_OversizedSingleItemGetsOwnBatch(t *testing.T) {
	items := []string{"small", stringOfLen(40), "small2"}
	batches := CreateBatches(items, func(s string) Item { return Item{Text: s} }, BatchOptions{MaxTokensPerBatch: 5})
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"small"}, batches[0])
	assert.Equal(t, []string{stringOfLen(40)}, batches[1])
	assert.Equal(t, []string{"small2"}, batches[2])
}

func TestCreateBatches_PreservesOrder(t *testing.T) {
	items := []string{"1", "2", "3", "4", "5", "6"}
	batches := CreateBatches(items, func(s string) Item { return Item{Text: s} }, BatchOptions{MaxMessagesPerBatch: 4})
	var flat []string
	for _, b := range batches {
		flat = append(flat, b...)
	}
	assert.Equal(t, items, flat)
}

func TestCreateBatches_PrecomputedTokensTakePrecedence(t *testing.T) {
	type entry struct {
		text   string
		tokens int
	}
	items := []entry{{text: "x", tokens: 10}, {text: "y", tokens: 10}}
	batches := CreateBatches(items, func(e entry) Item { return Item{Text: e.text, Tokens: e.tokens} }, BatchOptions{MaxTokensPerBatch: 15})
	require.Len(t, batches, 2)
}

func TestEstimateCost_SumsAcrossUsages(t *testing.T) {
	prices := Prices{InputPricePerToken: 0.01, OutputPricePerToken: 0.02}
	cost := EstimateCost(prices, Usage{InputTokens: 100, OutputTokens: 50}, Usage{InputTokens: 10, OutputTokens: 0})
	assert.InDelta(t, 1+1+0.1, cost, 0.0001)
}
