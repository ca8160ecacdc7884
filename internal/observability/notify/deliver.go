package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one sink request when no client is supplied.
	DefaultTimeout = 5 * time.Second

	maxErrorBody = 1 << 10
)

// Poster sends JSON documents to one sink URL with a bounded number of retries.
type Poster struct {
	Name       string // used in error messages, e.g. "slack webhook"
	URL        string
	RetryLimit int
	Client     *http.Client
	// Backoff is the delay before retry n (1-based). Defaults to n*200ms.
	Backoff func(n int) time.Duration
}

// NewPoster fills defaults for the client and retry limit.
func NewPoster(name, url string, timeout time.Duration, retryLimit int, client *http.Client) *Poster {
	if client == nil {
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Poster{
		Name:       name,
		URL:        url,
		RetryLimit: max(retryLimit, 0),
		Client:     client,
	}
}

// PostJSON encodes doc once and posts it until a 2xx answer, the retry limit, or ctx ends.
// The last error is returned.
func (p *Poster) PostJSON(ctx context.Context, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Name, err)
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = func(n int) time.Duration { return time.Duration(n) * 200 * time.Millisecond }
	}

	var lastErr error
	for attempt := 0; attempt <= p.RetryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}
		if lastErr = p.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *Poster) post(ctx context.Context, body []byte) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s response body: %w", p.Name, closeErr))
		}
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return fmt.Errorf("drain %s response body: %w", p.Name, drainErr)
		}
		return nil
	}

	snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("read %s error response: %w", p.Name, readErr)
	}
	return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(snippet)))
}
