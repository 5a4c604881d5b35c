package wikidata

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// DefaultUserAgent is sent by HTTPDownload when no override is configured.
const DefaultUserAgent = "wildside-engine/1 (+https://github.com/leynos/wildside-engine)"

// downloadBackoff is a minimal per-call exponential backoff, adapted from
// the provider backoff used by the engine's travel-time adapter: doubling
// delay with 10% jitter, capped at maxDelay.
type downloadBackoff struct {
	baseDelay, maxDelay time.Duration
	failures            int
}

func (b *downloadBackoff) wait(ctx context.Context) error {
	if b.failures == 0 {
		return nil
	}
	multiplier := math.Pow(2, float64(b.failures-1))
	delay := time.Duration(float64(b.baseDelay) * multiplier)
	if delay > b.maxDelay {
		delay = b.maxDelay
	}
	delay += time.Duration(rand.Float64() * 0.1 * float64(delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPDownload fetches url with GET, retrying transient failures (network
// errors and 5xx) with exponential backoff up to maxAttempts times, and
// copies the response body to dst. Acquire uses it for the dump transfer;
// hosts with their own manifest handling may call it directly.
func HTTPDownload(ctx context.Context, client *http.Client, url string, dst io.Writer, maxAttempts int, userAgent string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := &downloadBackoff{baseDelay: 500 * time.Millisecond, maxDelay: 30 * time.Second}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := backoff.wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: build request: %w", ErrTransport, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			backoff.failures++
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error status %d", resp.StatusCode)
			backoff.failures++
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
		}

		_, err = io.Copy(dst, resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: copy body: %w", ErrTransport, err)
		}
		return nil
	}

	return fmt.Errorf("%w: %d attempts exhausted: %w", ErrTransport, maxAttempts, lastErr)
}
