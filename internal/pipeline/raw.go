package pipeline

import (
	"context"
	"log/slog"
	"time"

	"promtap/internal/config"
)

// syncRaw extracts every point of one raw-mode metric in batched step
// windows, advancing the bookmark after each window.
// Params: ctx cancellation boundary; metric raw-mode spec; extractedAt
// wall-clock pass timestamp.
// Returns: first backend, sink, or persistence error.
func (e *Engine) syncRaw(ctx context.Context, metric config.MetricConfig, extractedAt time.Time) error {
	bookmark := e.state.Get(metric.Name)
	now := e.now().UTC().Unix()
	if now <= bookmark {
		e.logger.Debug("bookmark already current", slog.String("stream", metric.Name))
		return e.flushState()
	}

	fetchSteps := (now - bookmark) / metric.Step
	e.logger.Debug(
		"raw sync plan",
		slog.String("stream", metric.Name),
		slog.Int64("steps", fetchSteps),
		slog.Int64("batch", metric.Batch),
	)

	iter := bookmark
	var synced int64
	for synced < fetchSteps {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchSteps := metric.Batch
		if remaining := fetchSteps - synced; remaining < batchSteps {
			batchSteps = remaining
		}
		next := iter + batchSteps*metric.Step

		series, err := e.client.RangeQuery(ctx, metric.Query, iter, next, metric.Step)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			e.logger.Warn(
				"window returned no series",
				slog.String("stream", metric.Name),
				slog.Int64("start", iter),
				slog.Int64("end", next),
			)
		}

		for _, s := range series {
			for _, point := range s.Points {
				record := RawRecord{
					Date:   formatDate(point.Timestamp),
					Labels: s.Labels,
					Value:  parseFloatOrNull(point.Raw),
				}
				if err := e.emitter.EmitRecord(metric.Name, record, extractedAt); err != nil {
					return err
				}
			}
		}

		e.state.Set(metric.Name, next)
		if err := e.flushState(); err != nil {
			return err
		}

		iter = next
		synced += batchSteps
	}

	// Final checkpoint regardless of window count, so an empty pass is
	// still observable in the output.
	return e.flushState()
}
