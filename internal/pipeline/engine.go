package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"promtap/internal/catalog"
	"promtap/internal/config"
	"promtap/internal/match"
	"promtap/internal/promapi"
	"promtap/internal/state"
)

// Config wires the extraction engine's collaborators.
// Params: backend client, discovered catalog, bookmark store, output sink,
// logger, metric specs, optional stream selector, and an optional clock.
// Returns: engine dependencies.
type Config struct {
	Client   promapi.Client
	Catalog  *catalog.Catalog
	State    *state.Store
	Sink     Sink
	Logger   *slog.Logger
	Metrics  []config.MetricConfig
	Selector match.Selector

	// Now overrides the engine clock. Nil means time.Now.
	Now func() time.Time
}

// Engine runs one extraction pass over all selected metrics.
// Params: validated engine dependencies.
// Returns: single-pass extraction engine.
type Engine struct {
	client   promapi.Client
	catalog  *catalog.Catalog
	state    *state.Store
	emitter  *Emitter
	sink     Sink
	logger   *slog.Logger
	metrics  []config.MetricConfig
	selector match.Selector
	now      func() time.Time
}

// New validates dependencies and metric specs and builds an engine.
// Params: cfg engine dependencies.
// Returns: engine or joined validation error.
func New(cfg Config) (*Engine, error) {
	var errs []error
	if cfg.Client == nil {
		errs = append(errs, fmt.Errorf("client is required"))
	}
	if cfg.Catalog == nil {
		errs = append(errs, fmt.Errorf("catalog is required"))
	}
	if cfg.State == nil {
		errs = append(errs, fmt.Errorf("state store is required"))
	}
	if cfg.Sink == nil {
		errs = append(errs, fmt.Errorf("sink is required"))
	}
	if cfg.Logger == nil {
		errs = append(errs, fmt.Errorf("logger is required"))
	}
	if len(cfg.Metrics) == 0 {
		errs = append(errs, fmt.Errorf("at least one metric spec is required"))
	}
	errs = append(errs, validateSpecs(cfg.Metrics)...)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		client:   cfg.Client,
		catalog:  cfg.Catalog,
		state:    cfg.State,
		emitter:  NewEmitter(cfg.Sink, cfg.Catalog),
		sink:     cfg.Sink,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		selector: cfg.Selector,
		now:      now,
	}, nil
}

// validateSpecs re-checks the invariants the engine relies on. Config loading
// already enforces these; the engine refuses to run on specs built any other
// way.
// Params: metrics metric spec list.
// Returns: list of violations.
func validateSpecs(metrics []config.MetricConfig) []error {
	var errs []error
	for _, metric := range metrics {
		if metric.Step <= 0 {
			errs = append(errs, fmt.Errorf("metric %q: step must be > 0", metric.Name))
		}
		switch metric.Mode() {
		case config.ModeRaw:
			if metric.Batch <= 0 {
				errs = append(errs, fmt.Errorf("metric %q: batch must be > 0", metric.Name))
			}
		case config.ModeAggregated:
			if metric.Period != config.PeriodDay {
				errs = append(errs, fmt.Errorf("metric %q: unsupported period %q", metric.Name, metric.Period))
			}
			for _, reducer := range metric.Reducers() {
				if !config.IsSupportedAggregation(reducer) {
					errs = append(errs, fmt.Errorf("metric %q: unsupported aggregation %q", metric.Name, reducer))
				}
			}
		}
	}
	return errs
}

// Run executes one extraction pass: declare schemas for every selected
// stream, then sync each metric from its bookmark up to now.
// Params: ctx cancellation checked between windows, never inside one.
// Returns: first sync error, or nil after a complete pass.
func (e *Engine) Run(ctx context.Context) error {
	selected := make([]config.MetricConfig, 0, len(e.metrics))
	for _, metric := range e.metrics {
		if !e.selector.Selects(metric.Name) {
			e.logger.Debug("stream not selected", slog.String("stream", metric.Name))
			continue
		}
		selected = append(selected, metric)
	}
	if len(selected) == 0 {
		e.logger.Warn("no streams selected, nothing to extract")
		return e.flushState()
	}

	for _, metric := range selected {
		if err := e.emitter.EmitSchema(metric.Name); err != nil {
			return err
		}
	}

	for _, metric := range selected {
		e.logger.Info(
			"loading metric",
			slog.String("stream", metric.Name),
			slog.Int64("bookmark", e.state.Get(metric.Name)),
		)

		// Per metric, not per pass: late streams in a long run must not
		// carry a stale extraction time.
		extractedAt := e.now().UTC()

		var err error
		switch metric.Mode() {
		case config.ModeAggregated:
			err = e.syncAggregated(ctx, metric, extractedAt)
		default:
			err = e.syncRaw(ctx, metric, extractedAt)
		}
		if err != nil {
			return fmt.Errorf("sync %q: %w", metric.Name, err)
		}
	}

	e.emitter.LogCounts(e.logger)
	return nil
}

// flushState emits the STATE message and persists bookmarks durably, in that
// order. A consumer that sees the message can rely on the file matching it.
// Params: none.
// Returns: sink or persistence error.
func (e *Engine) flushState() error {
	if err := e.sink.WriteState(e.state.Snapshot()); err != nil {
		return err
	}
	return e.state.Flush()
}
