// Package webhook implements an HTTP POST notification adapter.
//
// Publishes session completion events as JSON to a configurable URL.
// Transient failures are retried with exponential backoff; client errors
// (4xx) abort immediately.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lodeworks/sluice/adapter"
	"github.com/lodeworks/sluice/iox"
	"github.com/lodeworks/sluice/types"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the default number of retry attempts.
	DefaultRetries = 3
	// backoffBase is the delay before the first retry; doubles per attempt.
	backoffBase = 500 * time.Millisecond
	// maxErrorBodyBytes bounds how much of an error response is kept
	// for diagnostics.
	maxErrorBodyBytes = 512
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes session completion events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish sends the event as a JSON POST request.
// Retries on 5xx responses and network errors; 4xx responses fail
// immediately since retrying a rejected payload cannot succeed.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	attempts := 1 + a.config.Retries
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return fmt.Errorf("webhook: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		lastErr = a.post(ctx, body)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && !statusErr.Retriable() {
			return fmt.Errorf("webhook: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

// sleepBackoff waits out the exponential backoff for the given retry
// attempt, or returns early on context cancellation.
func sleepBackoff(ctx context.Context, attempt int) error {
	delay := backoffBase << uint(attempt-1)
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// Body holds a bounded prefix of the response body for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retriable reports whether the response class is worth retrying.
func (e *StatusError) Retriable() bool {
	return e.Code < 400 || e.Code >= 500
}

// post performs a single HTTP POST and returns nil on 2xx.
func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sluice/"+types.Version)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		iox.DrainDiscard(resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	iox.DrainDiscard(resp.Body)
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
