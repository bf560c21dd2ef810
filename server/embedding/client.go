package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"semchat/server/domain"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
)

// Client wraps a Hugging Face Inference API feature-extraction model. It is
// stateless; every call produces one fixed-length vector for one text.
type Client struct {
	endpoint   string
	token      string
	dim        int
	attempts   int
	retryDelay time.Duration
	client     *http.Client
}

type Option func(*Client)

func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = httpClient
	}
}

// NewClient requires the model endpoint URL, an auth token and the model's
// vector dimension. All vectors ever produced must share that dimension.
func NewClient(endpoint, token string, dim int, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		token:      strings.TrimSpace(token),
		dim:        dim,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dimension() int {
	return c.dim
}

// Embed produces the embedding vector for text. Transient failures (network
// errors, rate limits, 5xx including the model-loading 503) are retried a
// bounded number of times with a fixed delay; other 4xx fail immediately.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		vec, retryable, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable || attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
	return nil, lastErr
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, bool, error) {
	body, err := json.Marshal(map[string]any{"inputs": []string{text}})
	if err != nil {
		return nil, false, fmt.Errorf("%w: marshal request: %v", domain.ErrEmbeddingUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", domain.ErrEmbeddingUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, retryable, fmt.Errorf("%w: status %d: %s", domain.ErrEmbeddingUnavailable, resp.StatusCode, preview)
	}

	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	if len(vec) != c.dim {
		return nil, false, fmt.Errorf("%w: got dimension %d, want %d", domain.ErrEmbeddingMalformed, len(vec), c.dim)
	}
	return vec, false, nil
}

// decodeVector accepts either a bare vector or a one-element batch of
// vectors, which is how the inference API answers a single-input request.
func decodeVector(raw []byte) ([]float32, error) {
	var batch [][]float32
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) == 0 || len(batch[0]) == 0 {
			return nil, fmt.Errorf("%w: empty vector", domain.ErrEmbeddingMalformed)
		}
		return batch[0], nil
	}

	var single []float32
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingMalformed, err)
	}
	if len(single) == 0 {
		return nil, fmt.Errorf("%w: empty vector", domain.ErrEmbeddingMalformed)
	}
	return single, nil
}
