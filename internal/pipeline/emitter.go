package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"promtap/internal/catalog"
)

// Emitter validates records against declared streams, forwards them to the
// sink, and keeps per-stream counters for operator-facing reporting. The
// counters are never used for correctness decisions.
// Params: sink destination and stream catalog.
// Returns: record emitter.
type Emitter struct {
	sink     Sink
	catalog  *catalog.Catalog
	declared map[string]struct{}
	counts   map[string]int
	order    []string
}

// NewEmitter creates an emitter over a sink and catalog.
// Params: sink message destination; cat discovered stream registry.
// Returns: emitter instance.
func NewEmitter(sink Sink, cat *catalog.Catalog) *Emitter {
	return &Emitter{
		sink:     sink,
		catalog:  cat,
		declared: make(map[string]struct{}),
		counts:   make(map[string]int),
	}
}

// EmitSchema declares one stream's schema before any of its records.
// Repeated declarations for the same stream are silently skipped.
// Params: stream name registered in the catalog.
// Returns: error for unknown streams or sink failure.
func (e *Emitter) EmitSchema(stream string) error {
	entry, ok := e.catalog.Lookup(stream)
	if !ok {
		return fmt.Errorf("unknown stream %q", stream)
	}
	if _, done := e.declared[stream]; done {
		return nil
	}

	if err := e.sink.WriteSchema(stream, entry.Schema, entry.KeyProperties); err != nil {
		return err
	}
	e.declared[stream] = struct{}{}
	e.counts[stream] = 0
	e.order = append(e.order, stream)
	return nil
}

// EmitRecord forwards one record and bumps the stream counter.
// Params: stream name with a declared schema; record typed payload;
// extractedAt wall-clock extraction time.
// Returns: error when the stream is undeclared or the sink fails.
func (e *Emitter) EmitRecord(stream string, record any, extractedAt time.Time) error {
	if _, ok := e.declared[stream]; !ok {
		return fmt.Errorf("stream %q has no declared schema", stream)
	}
	if err := e.sink.WriteRecord(stream, record, extractedAt); err != nil {
		return err
	}
	e.counts[stream]++
	return nil
}

// Count reports the number of records emitted for one stream.
// Params: stream name.
// Returns: emitted record count.
func (e *Emitter) Count(stream string) int {
	return e.counts[stream]
}

// LogCounts reports per-stream totals in declaration order.
// Params: logger for operator output.
// Returns: none.
func (e *Emitter) LogCounts(logger *slog.Logger) {
	for _, stream := range e.order {
		logger.Info(
			"stream extracted",
			slog.String("stream", stream),
			slog.Int("records", e.counts[stream]),
		)
	}
}
