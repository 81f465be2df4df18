package infer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T, handler http.HandlerFunc) *HTTPRemoteInferer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPRemoteInferer(RemoteConfig{
		Endpoint: server.URL,
		Provider: "test",
		Model:    "test-model",
		Timeout:  time.Second,
	})
}

func TestHTTPRemoteInferer_SuccessfulScoreParsing(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpScoreResponse{
			Scores: []struct {
				FileID string  `json:"file_id"`
				Score  float64 `json:"score"`
			}{
				{FileID: "tax-2024.pdf", Score: 0.9},
				{FileID: "budget.xlsx", Score: 0.4},
			},
			TokensUsed: 128,
		})
	})

	scores, err := remote.InferRemote(context.Background(), "find tax documents")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, int64(128), remote.LastTokens())
}

func TestHTTPRemoteInferer_RetriesOn429HonoringRetryAfter(t *testing.T) {
	var calls int32
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(httpScoreResponse{TokensUsed: 1})
	})

	_, err := remote.InferRemote(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPRemoteInferer_RetriesOn5xxWithBackoff(t *testing.T) {
	var calls int32
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(httpScoreResponse{TokensUsed: 1})
	})

	_, err := remote.InferRemote(context.Background(), "query")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestHTTPRemoteInferer_NonRetryable4xxFailsFast(t *testing.T) {
	var calls int32
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := remote.InferRemote(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable 4xx should not be retried")
}

func TestHTTPRemoteInferer_CircuitBreakerTripsAfterRepeatedFailures(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	// Default breaker trips after 5 recorded failures.
	for i := 0; i < 5; i++ {
		_, err := remote.InferRemote(context.Background(), "query")
		require.Error(t, err)
	}

	_, err := remote.InferRemote(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorContains(t, err, "circuit")
}

func TestHTTPRemoteInferer_ContextCancellationReturnsPromptly(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := remote.InferRemote(ctx, "query")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond, "canceled context should abort retries promptly")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-number"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
}
