package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
)

const (
	contentType     = "application/json"
	maxDrainedBytes = 64 << 10
)

// Outcome of a single delivery attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable-failure"
	OutcomeTerminal  Outcome = "terminal-failure"
)

type Attempt struct {
	Number     int
	Outcome    Outcome
	HTTPStatus int
	Elapsed    time.Duration
	Err        error
}

// Delivery summarizes the attempt loop for one payload.
type Delivery struct {
	URL       string
	Attempts  []Attempt
	Delivered bool
}

// Deliverer pushes an encoded payload to whoever waits for it.
type Deliverer interface {
	Deliver(ctx context.Context, requestID string, body []byte) (Delivery, error)
}

// Callback POSTs payloads to <base>/<plugin>/<requestId> retrying transient
// failures with exponential backoff.
type Callback struct {
	baseURL        string
	plugin         string
	client         *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	backoff        Backoff
	sleep          func(ctx context.Context, d time.Duration) error
	random         func() float64
}

func NewCallback(cfg model.Callback, plugin string) *Callback {
	return &Callback{
		baseURL:        cfg.BaseURL,
		plugin:         plugin,
		client:         &http.Client{},
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: time.Duration(cfg.AttemptTimeout),
		backoff: Backoff{
			Base: time.Duration(cfg.BaseDelay),
			Max:  time.Duration(cfg.MaxDelay),
		},
		sleep:  sleepContext,
		random: rand.Float64,
	}
}

// WithClient changes the http client, used by tests.
func (c *Callback) WithClient(client *http.Client) *Callback {
	c.client = client
	return c
}

// WithSleep replaces the pause between attempts, used by tests.
func (c *Callback) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Callback {
	c.sleep = sleep
	return c
}

// URL returns the callback endpoint for requestID.
func (c *Callback) URL(requestID string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if base == "" {
		return "", errors.New("callback base url is not configured")
	}
	raw := base + "/" + url.PathEscape(c.plugin) + "/" + url.PathEscape(requestID)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("callback url %q needs an http(s) scheme and a host", raw)
	}
	return raw, nil
}

// Deliver runs the attempt loop. It returns nil once a 2xx is received,
// ErrDeliveryRejected for non retryable failures and ErrDeliveryExhausted
// when the attempt budget is spent.
func (c *Callback) Deliver(ctx context.Context, requestID string, body []byte) (Delivery, error) {
	var delivery Delivery
	target, err := c.URL(requestID)
	if err != nil {
		return delivery, fmt.Errorf("%w: %w", model.ErrDeliveryRejected, err)
	}
	delivery.URL = target

	maxAttempts := max(c.maxAttempts, 1)
	for n := 1; n <= maxAttempts; n++ {
		attempt := c.attempt(ctx, n, target, body)
		delivery.Attempts = append(delivery.Attempts, attempt)

		actx := log.ContextAttrs(ctx,
			slog.Int("attempt", n),
			slog.Int("max_attempts", maxAttempts),
		)
		switch attempt.Outcome {
		case OutcomeSuccess:
			slog.InfoContext(actx, "callback delivered", "status", attempt.HTTPStatus, "elapsed", attempt.Elapsed.String())
			delivery.Delivered = true
			return delivery, nil
		case OutcomeTerminal:
			slog.ErrorContext(actx, "callback rejected", "status", attempt.HTTPStatus, "error", attempt.Err)
			return delivery, fmt.Errorf("%w: %w", model.ErrDeliveryRejected, attempt.Err)
		}

		slog.WarnContext(actx, "callback attempt failed", "status", attempt.HTTPStatus, "elapsed", attempt.Elapsed.String(), "error", attempt.Err)
		if n == maxAttempts {
			break
		}
		delay := c.backoff.Delay(n, c.random())
		if err := c.sleep(ctx, delay); err != nil {
			return delivery, fmt.Errorf("%w: %w", model.ErrDeliveryExhausted, err)
		}
	}
	return delivery, fmt.Errorf("%w after %d attempt(s)", model.ErrDeliveryExhausted, len(delivery.Attempts))
}

func (c *Callback) attempt(ctx context.Context, n int, target string, body []byte) Attempt {
	a := Attempt{Number: n}
	started := time.Now()

	actx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		a.Outcome, a.Err = OutcomeTerminal, err
		a.Elapsed = time.Since(started)
		return a
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		a.Outcome, a.Err = OutcomeRetryable, err
		a.Elapsed = time.Since(started)
		return a
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	a.HTTPStatus = resp.StatusCode
	a.Outcome = classifyStatus(resp.StatusCode)
	if a.Outcome != OutcomeSuccess {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.Err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBytes))
	a.Elapsed = time.Since(started)
	return a
}

func classifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeTerminal
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
