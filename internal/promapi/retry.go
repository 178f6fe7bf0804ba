package promapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
)

// RetryConfig bounds the retry policy around range queries.
// Params: attempt cap beyond the first call and initial backoff interval.
// Returns: retry policy settings.
type RetryConfig struct {
	MaxRetries int
	RetryWait  time.Duration
}

type retryClient struct {
	next   Client
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry decorates a client with bounded exponential backoff.
// Params: next wrapped client; cfg retry bounds; logger for retry notices.
// Returns: client retrying transient backend failures.
func WithRetry(next Client, cfg RetryConfig, logger *slog.Logger) Client {
	return &retryClient{next: next, cfg: cfg, logger: logger}
}

// RangeQuery retries the wrapped call on retryable failures.
// Params: same contract as Client.RangeQuery.
// Returns: series from the first successful attempt, or the last error once
// retries are exhausted or a permanent failure is seen.
func (c *retryClient) RangeQuery(ctx context.Context, query string, start, end, step int64) ([]Series, error) {
	var out []Series

	operation := func() error {
		series, err := c.next.RangeQuery(ctx, query, start, end, step)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = series
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	if c.cfg.RetryWait > 0 {
		policy.InitialInterval = c.cfg.RetryWait
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn(
			"range query retry",
			slog.String("query", query),
			slog.Int64("start", start),
			slog.Int64("end", end),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx),
		notify,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isRetryable classifies backend failures per the hardening policy:
// timeouts and server-side conditions retry, client-side conditions are
// immediately fatal.
// Params: err failure from one attempt.
// Returns: true when the attempt may be repeated.
func isRetryable(err error) bool {
	var apiErr *promv1.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case promv1.ErrTimeout, promv1.ErrServer:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	// Deadline from the per-call timeout and plain transport failures.
	return true
}
