package rtm

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// transportConfig holds retry tuning for the HTTP layer.
type transportConfig struct {
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// EnableJitter adds ±20% random jitter to each delay.
	EnableJitter bool

	// Timeout bounds each individual request.
	Timeout time.Duration
}

func (c transportConfig) withDefaults() transportConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 8 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// retryTransport is an HTTP GET client that retries transient failures
// (network errors, timeouts, 429 and 5xx responses) with exponential
// backoff before giving up with a TransportError.
type retryTransport struct {
	httpClient   *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	enableJitter bool
}

func newRetryTransport(cfg transportConfig) *retryTransport {
	cfg = cfg.withDefaults()
	return &retryTransport{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		maxRetries:   cfg.MaxRetries,
		baseDelay:    cfg.BaseDelay,
		maxDelay:     cfg.MaxDelay,
		enableJitter: cfg.EnableJitter,
	}
}

// get fetches url, retrying transient failures. op names the API method
// for error reporting. The response body is fully read and returned so
// retries never hold connections open.
func (t *retryTransport) get(ctx context.Context, op, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoff(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, &TransportError{Op: op, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &TransportError{Op: op, Attempts: attempt + 1, Err: err}
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, &TransportError{Op: op, Attempts: attempt + 1, Err: ctx.Err()}
			}
			continue
		}

		if retriableStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			lastErr = &httpStatusError{status: resp.StatusCode}
			if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra != nil && attempt < t.maxRetries {
				select {
				case <-ctx.Done():
					return nil, &TransportError{Op: op, Attempts: attempt + 1, Err: ctx.Err()}
				case <-time.After(*ra):
				}
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &TransportError{Op: op, Attempts: attempt + 1, Err: &httpStatusError{status: resp.StatusCode}}
		}
		return body, nil
	}

	return nil, &TransportError{Op: op, Attempts: t.maxRetries + 1, Err: lastErr}
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > t.maxDelay {
		delay = t.maxDelay
	}
	if t.enableJitter {
		factor := 0.8 + rand.Float64()*0.4
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(e.status)
}

// parseRetryAfter parses a Retry-After header, supporting both the
// seconds and HTTP-date forms. Returns nil if absent or invalid.
func parseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
