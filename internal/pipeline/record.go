package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"promtap/internal/config"
)

// stateFlushEveryRecords bounds replay distance on restart for the
// aggregated strategy.
const stateFlushEveryRecords = 100

// RawRecord is one extracted point in raw mode.
// Params: normalized date, series labels, nullable numeric value.
// Returns: one output record payload.
type RawRecord struct {
	Date   string            `json:"date"`
	Labels map[string]string `json:"labels"`
	Value  *float64          `json:"value"`
}

// AggregatedRecord is one reduced window scalar in aggregated mode.
// Params: window start date, metric identity, series labels, reducer name,
// nullable reduced value.
// Returns: one output record payload.
type AggregatedRecord struct {
	Date        string            `json:"date"`
	Metric      string            `json:"metric"`
	Labels      map[string]string `json:"labels"`
	Aggregation string            `json:"aggregation"`
	Value       *float64          `json:"value"`
}

// formatDate normalizes a unix timestamp into the configured wire format.
// Params: unix seconds.
// Returns: UTC date string.
func formatDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(config.DateFormat)
}

// parseFloatOrNull converts a raw backend value into a nullable float.
// Absent, unparsable, and non-finite values all degrade to null, never to an
// error. NaN and the infinities parse successfully but cannot be serialized
// as JSON numbers, so they are nulls like any other absent sample.
// Params: raw backend value or nil.
// Returns: parsed value pointer or nil.
func parseFloatOrNull(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}
