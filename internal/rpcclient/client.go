// Package rpcclient is the HTTP client for the eight server RPCs the sync
// engine consumes: GetNewEntries, HasContent,
// UploadContent, DownloadContent, AddEntry, MovePath, RemovePath,
// ResetVersion. Transport is HTTP(S) with a static bearer token
// (Authorization: Bearer <token>), length-prefixed binary frames, and
// chunked transfer for streaming bodies.
package rpcclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Retry policy constants.
const (
	maxRetries     = 6
	baseBackoff    = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "rammingen/0.1"

	// requestDeadline and idleTimeout are not applied by any request;
	// an RPC is bounded only by the context its caller passes in.
	requestDeadline = 60 * time.Second
	idleTimeout     = 30 * time.Second
)

// Client is the bearer-token HTTP client for the archive server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient
// with no timeout (callers bound requests via context instead, since
// streaming bodies must not be cut off by a fixed client-wide timeout).
func New(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// doRetry executes an authenticated request with retry on transient
// network and server errors: network errors and 5xx are
// retried with exponential backoff; 401/403/400 and integrity failures
// are never retried.
func (c *Client) doRetry(ctx context.Context, req func() (*http.Request, error)) (*http.Response, error) {
	var attempt int

	for {
		r, err := req()
		if err != nil {
			return nil, fmt.Errorf("rpcclient: building request: %w", err)
		}

		r.Header.Set("Authorization", "Bearer "+c.token)
		r.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("rpcclient: request canceled: %w", ctx.Err())
			}

			if attempt >= maxRetries {
				return nil, &CoreError{Kind: KindNetwork, Err: fmt.Errorf("rpcclient: failed after %d retries: %w", maxRetries, err)}
			}

			backoff := c.calcBackoff(attempt)
			c.logger.Warn("retrying after network error",
				slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff), slog.String("error", err.Error()))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("rpcclient: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		classified := classifyStatus(resp.StatusCode)

		if !isRetryable(resp.StatusCode) || attempt >= maxRetries {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			return nil, &CoreError{Kind: classified, Err: fmt.Errorf("rpcclient: %s %s: status %d: %s", r.Method, r.URL.Path, resp.StatusCode, body)}
		}

		resp.Body.Close()

		backoff := c.calcBackoff(attempt)
		c.logger.Warn("retrying after server error",
			slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

		if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("rpcclient: request canceled: %w", sleepErr)
		}

		attempt++
	}
}

func isRetryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
