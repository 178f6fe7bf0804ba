package promapi

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
)

type scriptedClient struct {
	calls    int
	failures int
	err      error
	series   []Series
}

// RangeQuery fails the first N calls with err, then succeeds.
// Params: ignored query window.
// Returns: configured series or scripted error.
func (c *scriptedClient) RangeQuery(context.Context, string, int64, int64, int64) ([]Series, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	return c.series, nil
}

// TestWithRetry_RecoversFromTransientFailures verifies bounded retries.
// Params: testing.T for assertions.
// Returns: none.
func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	stub := &scriptedClient{
		failures: 2,
		err:      fmt.Errorf("connection refused"),
		series:   []Series{{Labels: map[string]string{"instance": "a"}}},
	}
	client := WithRetry(stub, RetryConfig{MaxRetries: 3, RetryWait: time.Millisecond}, discardLogger())

	series, err := client.RangeQuery(context.Background(), "up", 0, 60, 60)
	if err != nil {
		t.Fatalf("RangeQuery() error: %v", err)
	}
	if stub.calls != 3 {
		t.Fatalf("unexpected call count: %d", stub.calls)
	}
	if len(series) != 1 {
		t.Fatalf("unexpected series: %v", series)
	}
}

// TestWithRetry_ExhaustsRetryBudget verifies the retry cap.
// Params: testing.T for assertions.
// Returns: none.
func TestWithRetry_ExhaustsRetryBudget(t *testing.T) {
	stub := &scriptedClient{
		failures: 10,
		err:      &promv1.Error{Type: promv1.ErrServer, Msg: "overloaded"},
	}
	client := WithRetry(stub, RetryConfig{MaxRetries: 2, RetryWait: time.Millisecond}, discardLogger())

	if _, err := client.RangeQuery(context.Background(), "up", 0, 60, 60); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if stub.calls != 3 {
		t.Fatalf("unexpected call count: %d", stub.calls)
	}
}

// TestWithRetry_PermanentFailureShortCircuits verifies fatal classification.
// Params: testing.T for assertions.
// Returns: none.
func TestWithRetry_PermanentFailureShortCircuits(t *testing.T) {
	stub := &scriptedClient{
		failures: 10,
		err:      &promv1.Error{Type: promv1.ErrBadData, Msg: "parse error"},
	}
	client := WithRetry(stub, RetryConfig{MaxRetries: 5, RetryWait: time.Millisecond}, discardLogger())

	_, err := client.RangeQuery(context.Background(), "up{", 0, 60, 60)
	if err == nil {
		t.Fatalf("expected permanent error")
	}
	if stub.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", stub.calls)
	}

	var apiErr *promv1.Error
	if !errors.As(err, &apiErr) || apiErr.Type != promv1.ErrBadData {
		t.Fatalf("expected bad_data error, got %v", err)
	}
}

// TestIsRetryable verifies error classification.
// Params: testing.T for assertions.
// Returns: none.
func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &promv1.Error{Type: promv1.ErrTimeout}, true},
		{"server", &promv1.Error{Type: promv1.ErrServer}, true},
		{"bad_data", &promv1.Error{Type: promv1.ErrBadData}, false},
		{"client", &promv1.Error{Type: promv1.ErrClient}, false},
		{"transport", fmt.Errorf("dial tcp: connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}

	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Fatalf("isRetryable(%s): got=%v want=%v", tc.name, got, tc.want)
		}
	}
}
