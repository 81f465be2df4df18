package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// RemoteConfig configures the HTTP remote inference adapter.
type RemoteConfig struct {
	Endpoint string
	APIKey   string
	Provider string
	Model    string
	Timeout  time.Duration
}

// httpScoreRequest is the generic request body sent to the remote
// provider: an anonymized prompt and the model to run it against. Real
// provider adapters (OpenAI/Anthropic-shaped) would translate this into
// their own wire format; this one request/response shape is what every
// provider behind RemoteConfig.Provider is expected to speak, the same
// single-endpoint-per-provider assumption the LLM query classifier makes
// against Ollama's /api/generate.
type httpScoreRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type httpScoreResponse struct {
	Scores []struct {
		FileID string  `json:"file_id"`
		Score  float64 `json:"score"`
	} `json:"scores"`
	TokensUsed int64 `json:"tokens_used"`
}

// HTTPRemoteInferer implements RemoteInferer against a single JSON HTTP
// endpoint, wrapped with a circuit breaker and Retry-After handling:
// 4xx other than 429 are non-retryable, 5xx and 429
// retry up to 3 attempts with exponential backoff, honoring any
// Retry-After header.
type HTTPRemoteInferer struct {
	client  *http.Client
	config  RemoteConfig
	breaker *errors.CircuitBreaker

	// lastTokens records the token count reported by the most recent call,
	// for the coordinator's cost tracker to read after InferRemote returns.
	lastTokens int64
}

// NewHTTPRemoteInferer creates a remote inferer. Timeout <= 0 uses 500ms.
func NewHTTPRemoteInferer(cfg RemoteConfig) *HTTPRemoteInferer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return &HTTPRemoteInferer{
		client:  &http.Client{},
		config:  cfg,
		breaker: errors.NewCircuitBreaker("infer-remote-" + cfg.Provider),
	}
}

// LastTokens returns the token count from the most recently completed call.
func (h *HTTPRemoteInferer) LastTokens() int64 {
	return h.lastTokens
}

// InferRemote posts the anonymized prompt to the configured endpoint and
// returns per-file scores. Retries on 429/5xx, obeying a server-provided
// Retry-After header; non-retryable 4xx responses (other than 429) return
// immediately.
func (h *HTTPRemoteInferer) InferRemote(ctx context.Context, anonymizedPrompt string) ([]FileScore, error) {
	if !h.breaker.Allow() {
		return nil, errors.New(errors.ErrCodeNetworkUnavailable, "remote inference circuit open", nil)
	}

	var scores []FileScore
	err := h.breaker.Execute(func() error {
		s, err := h.doWithRetry(ctx, anonymizedPrompt)
		if err != nil {
			return err
		}
		scores = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func (h *HTTPRemoteInferer) doWithRetry(ctx context.Context, prompt string) ([]FileScore, error) {
	const maxAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		scores, retryAfter, err := h.doOnce(ctx, prompt)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}

		delay := retryAfter
		if delay <= 0 {
			delay = time.Duration(1<<attempt) * 200 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// retryableError wraps an error with whether it qualifies for another
// attempt and the server-requested Retry-After delay, if any.
type retryableError struct {
	err       error
	retryable bool
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	re, ok := err.(*retryableError)
	return ok && re.retryable
}

func (h *HTTPRemoteInferer) doOnce(ctx context.Context, prompt string) ([]FileScore, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	body, err := json.Marshal(httpScoreRequest{Model: h.config.Model, Prompt: prompt})
	if err != nil {
		return nil, 0, &retryableError{err: fmt.Errorf("marshal request: %w", err), retryable: false}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &retryableError{err: fmt.Errorf("create request: %w", err), retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, &retryableError{err: fmt.Errorf("execute request: %w", err), retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		respBody, _ := io.ReadAll(resp.Body)
		return nil, retryAfter, &retryableError{
			err:       fmt.Errorf("remote status %d: %s", resp.StatusCode, string(respBody)),
			retryable: true,
		}
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, &retryableError{
			err:       fmt.Errorf("remote status %d: %s", resp.StatusCode, string(respBody)),
			retryable: false,
		}
	}

	var parsed httpScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, &retryableError{err: fmt.Errorf("decode response: %w", err), retryable: false}
	}

	h.lastTokens = parsed.TokensUsed
	scores := make([]FileScore, 0, len(parsed.Scores))
	for _, s := range parsed.Scores {
		scores = append(scores, FileScore{FileID: s.FileID, Score: s.Score})
	}
	return scores, 0, nil
}

// parseRetryAfter parses a Retry-After header given as integer seconds.
// Returns 0 (caller falls back to exponential backoff) if absent or
// malformed; the HTTP-date form is not supported.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
