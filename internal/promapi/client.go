package promapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promconfig "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
)

// Point is one sample inside a series window.
// Params: unix timestamp and raw backend value.
// Returns: one time-series sample; Raw is nil when the value is absent.
type Point struct {
	Timestamp int64
	Raw       *string
}

// Series is one labeled time-ordered sample sequence from the backend.
// Params: label set identifying the series and its points.
// Returns: one range-query result series.
type Series struct {
	Labels map[string]string
	Points []Point
}

// Client queries the metrics backend for one bounded window.
// Params: query expression, half-open [start, end) unix range, step seconds.
// Returns: series list or backend/transport error.
type Client interface {
	RangeQuery(ctx context.Context, query string, start, end, step int64) ([]Series, error)
}

// ClientConfig contains backend endpoint and call settings.
// Params: endpoint URL, optional basic auth, per-call timeout.
// Returns: backend client configuration.
type ClientConfig struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
}

type apiClient struct {
	api     promv1.API
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a Prometheus HTTP API client.
// Params: cfg endpoint/auth/timeout settings; logger for query warnings.
// Returns: range-query client or setup error.
func NewClient(cfg ClientConfig, logger *slog.Logger) (Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	roundTripper := api.DefaultRoundTripper
	if cfg.Username != "" {
		roundTripper = promconfig.NewBasicAuthRoundTripper(
			cfg.Username,
			promconfig.Secret(cfg.Password),
			"",
			roundTripper,
		)
	}

	base, err := api.NewClient(api.Config{
		Address:      cfg.Endpoint,
		RoundTripper: roundTripper,
	})
	if err != nil {
		return nil, fmt.Errorf("init backend client %q: %w", cfg.Endpoint, err)
	}

	return &apiClient{
		api:     promv1.NewAPI(base),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// RangeQuery runs one range query and converts the matrix result.
// Params: ctx lifecycle context; query expression; start/end half-open unix
// range; step seconds.
// Returns: series within [start, end) or backend error.
func (c *apiClient) RangeQuery(ctx context.Context, query string, start, end, step int64) ([]Series, error) {
	if end <= start {
		return nil, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	value, warnings, err := c.api.QueryRange(ctx, query, promv1.Range{
		Start: time.Unix(start, 0).UTC(),
		End:   time.Unix(end, 0).UTC(),
		Step:  time.Duration(step) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	for _, warning := range warnings {
		c.logger.Warn("range query warning", slog.String("query", query), slog.String("warning", warning))
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %q", value.Type())
	}

	return matrixToSeries(matrix, start, end), nil
}

// matrixToSeries converts a backend matrix into the client series contract.
// Params: matrix decoded range result; start/end half-open unix bounds.
// Returns: series list with points outside [start, end) dropped.
func matrixToSeries(matrix model.Matrix, start, end int64) []Series {
	out := make([]Series, 0, len(matrix))
	for _, stream := range matrix {
		labels := make(map[string]string, len(stream.Metric))
		for name, value := range stream.Metric {
			labels[string(name)] = string(value)
		}

		points := make([]Point, 0, len(stream.Values))
		for _, pair := range stream.Values {
			ts := pair.Timestamp.Unix()
			// The backend range endpoint is inclusive on both bounds; the
			// extraction contract is half-open.
			if ts < start || ts >= end {
				continue
			}
			raw := pair.Value.String()
			points = append(points, Point{Timestamp: ts, Raw: &raw})
		}

		out = append(out, Series{Labels: labels, Points: points})
	}
	return out
}
