// Package notify delivers task results to the caller's evaluation callback.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ShayCichocki/appforge/pkg/models"
)

// ErrNotificationFailed is returned when no attempt received HTTP 200.
var ErrNotificationFailed = errors.New("notification failed")

// DefaultMaxAttempts is the number of POSTs made before giving up.
const DefaultMaxAttempts = 5

// Outcome describes what happened across all attempts.
type Outcome struct {
	// Attempts is the number of POSTs made.
	Attempts int
	// Delivered is true once a POST returned HTTP 200.
	Delivered bool
	// LastStatus is the HTTP status of the final attempt, 0 on transport error.
	LastStatus int
	// LastError is the transport error of the final attempt, if any.
	LastError string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config contains configuration for a Notifier.
type Config struct {
	// HTTPClient sends the POSTs. Defaults to a client with RequestTimeout.
	HTTPClient *http.Client
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
	// BackoffUnit is the delay before the second attempt; each later delay doubles.
	BackoffUnit time.Duration
	// RequestTimeout bounds each POST when HTTPClient is not supplied.
	RequestTimeout time.Duration
	// Sleep overrides the wait between attempts.
	Sleep Sleeper
}

// Notifier posts payloads with exponential backoff.
type Notifier struct {
	client      *http.Client
	maxAttempts int
	unit        time.Duration
	sleep       Sleeper
}

// New creates a Notifier.
func New(cfg Config) *Notifier {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	unit := cfg.BackoffUnit
	if unit <= 0 {
		unit = time.Second
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Notifier{
		client:      client,
		maxAttempts: maxAttempts,
		unit:        unit,
		sleep:       sleep,
	}
}

// Backoff returns the wait after the given failed attempt (1-indexed):
// 1, 2, 4, 8 units with the default five attempts, since the final
// attempt is never followed by a wait.
func (n *Notifier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return n.unit << (attempt - 1)
}

// Notify posts payload to url until it gets HTTP 200 or runs out of attempts.
// There is no wait after the final attempt.
func (n *Notifier) Notify(ctx context.Context, url string, payload models.NotificationPayload) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode payload: %w", err)
	}

	var out Outcome
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		out.Attempts = attempt
		status, err := n.post(ctx, url, body)
		out.LastStatus = status
		out.LastError = ""
		if err != nil {
			out.LastError = err.Error()
		}

		if status == http.StatusOK {
			out.Delivered = true
			log.Printf("[notify] %s: delivered on attempt %d", url, attempt)
			return out, nil
		}

		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		if attempt == n.maxAttempts {
			break
		}

		wait := n.Backoff(attempt)
		log.Printf("[notify] %s: attempt %d/%d got %s, retrying in %s",
			url, attempt, n.maxAttempts, describe(status, err), wait)
		if err := n.sleep(ctx, wait); err != nil {
			return out, err
		}
	}

	log.Printf("[notify] %s: giving up after %d attempts (%s)",
		url, out.Attempts, describe(out.LastStatus, errors.New(out.LastError)))
	return out, fmt.Errorf("%w: %d attempts to %s, last %s",
		ErrNotificationFailed, out.Attempts, url, describe(out.LastStatus, errors.New(out.LastError)))
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func describe(status int, err error) string {
	if status != 0 {
		return fmt.Sprintf("HTTP %d", status)
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "no response"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
