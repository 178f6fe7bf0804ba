package pipeline

import (
	"context"
	"log/slog"
	"time"

	"promtap/internal/config"
)

// syncAggregated reduces one aggregated-mode metric over full day periods,
// emitting one record per series and reducer and advancing the bookmark after
// each period. Trailing partial periods wait for the next run.
// Params: ctx cancellation boundary; metric aggregated-mode spec; extractedAt
// wall-clock pass timestamp.
// Returns: first backend, sink, or persistence error.
func (e *Engine) syncAggregated(ctx context.Context, metric config.MetricConfig, extractedAt time.Time) error {
	period := config.PeriodDaySeconds
	reducers := metric.Reducers()
	now := e.now().UTC().Unix()

	iter := e.state.Get(metric.Name)
	var emitted int
	for iter+period <= now {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := iter + period

		series, err := e.client.RangeQuery(ctx, metric.Query, iter, next, metric.Step)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			e.logger.Warn(
				"period returned no series",
				slog.String("stream", metric.Name),
				slog.Int64("start", iter),
				slog.Int64("end", next),
			)
		}

		for _, s := range series {
			var acc accumulator
			for _, point := range s.Points {
				if value := parseFloatOrNull(point.Raw); value != nil {
					acc.Add(*value)
				}
			}

			for _, reducer := range reducers {
				value, err := acc.Result(reducer)
				if err != nil {
					return err
				}
				record := AggregatedRecord{
					Date:        formatDate(iter),
					Metric:      metric.Name,
					Labels:      s.Labels,
					Aggregation: reducer,
					Value:       value,
				}
				if err := e.emitter.EmitRecord(metric.Name, record, extractedAt); err != nil {
					return err
				}
				emitted++
				if emitted%stateFlushEveryRecords == 0 {
					if err := e.flushState(); err != nil {
						return err
					}
				}
			}
		}

		e.state.Set(metric.Name, next)
		if err := e.flushState(); err != nil {
			return err
		}
		iter = next
	}

	return e.flushState()
}
