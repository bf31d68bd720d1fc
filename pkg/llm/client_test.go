package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWithAI_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello back"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer server.Close()

	var gotStage string
	var gotUsage Usage
	client := New(Config{
		BaseURL: server.URL,
		Model:   "test-model",
		OnUsage: func(stage string, u Usage) {
			gotStage = stage
			gotUsage = u
		},
	})

	out, err := client.ProcessWithAI(context.Background(), "filter", "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
	assert.Equal(t, "filter", gotStage)
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 5}, gotUsage)
}

func TestProcessWithAI_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("overloaded"))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "m", MaxRetries: 3})
	out, err := client.ProcessWithAI(context.Background(), "filter", "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestProcessWithAI_NonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "m", MaxRetries: 3})
	_, err := client.ProcessWithAI(context.Background(), "filter", "s", "u")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProcessWithAI_MalformedBodyReturnsBadResponseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Model: "m", MaxRetries: 1})
	_, err := client.ProcessWithAI(context.Background(), "filter", "s", "u")
	require.Error(t, err)
	var badResp *BadResponseError
	assert.ErrorAs(t, err, &badResp)
}

func TestClassifyError_RetryableStatusCodes(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		err := &StatusError{StatusCode: code}
		assert.Equal(t, Retry, ClassifyError(err), "status %d should be retryable", code)
	}
}

func TestClassifyError_NonRetryableStatusCodes(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusBadGateway, http.StatusGatewayTimeout} {
		err := &StatusError{StatusCode: code}
		assert.Equal(t, NoRetry, ClassifyError(err), "status %d should not be retryable", code)
	}
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	d1 := backoffDelay(1)
	d2 := backoffDelay(2)
	assert.GreaterOrEqual(t, d1, BaseBackoff)
	assert.Less(t, d1, BaseBackoff+time.Duration(float64(BaseBackoff)*JitterFraction)+time.Millisecond)
	assert.Greater(t, d2, d1/2)

	dMax := backoffDelay(20)
	assert.LessOrEqual(t, dMax, MaxBackoff+time.Duration(float64(MaxBackoff)*JitterFraction)+time.Millisecond)
}
