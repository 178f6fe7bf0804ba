package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"promtap/internal/config"
)

//go:embed schema/metric_history.json
var rawSchemaTemplate []byte

// Stream is one discovered output stream: a metric name bound to its merged
// schema and key properties.
// Params: stream identity, extraction mode, schema document, key property list.
// Returns: immutable catalog entry.
type Stream struct {
	Name          string
	Mode          config.Mode
	Schema        map[string]any
	KeyProperties []string
}

// Catalog is the metric spec registry built once from configuration.
// Params: stream list and memoized name index.
// Returns: read-only stream registry.
type Catalog struct {
	streams []Stream
	byName  map[string]Stream
}

// Discover builds the catalog from configured metric specs. Pure function of
// configuration; performs no network access.
// Params: metrics validated metric spec list.
// Returns: catalog with one stream per metric, or schema build error.
func Discover(metrics []config.MetricConfig) (*Catalog, error) {
	out := &Catalog{
		streams: make([]Stream, 0, len(metrics)),
		byName:  make(map[string]Stream, len(metrics)),
	}

	for _, metric := range metrics {
		if _, dup := out.byName[metric.Name]; dup {
			return nil, fmt.Errorf("duplicate stream %q", metric.Name)
		}

		schema, err := buildSchema(metric)
		if err != nil {
			return nil, fmt.Errorf("build schema for %q: %w", metric.Name, err)
		}

		stream := Stream{
			Name:          metric.Name,
			Mode:          metric.Mode(),
			Schema:        schema,
			KeyProperties: keyProperties(metric.Mode()),
		}
		out.streams = append(out.streams, stream)
		out.byName[stream.Name] = stream
	}

	return out, nil
}

// Streams returns discovered streams in configuration order.
// Params: none.
// Returns: stream list.
func (c *Catalog) Streams() []Stream {
	return c.streams
}

// Lookup resolves one stream by name.
// Params: name stream name (equals the metric name, 1:1).
// Returns: stream and true, or false when unknown.
func (c *Catalog) Lookup(name string) (Stream, bool) {
	stream, ok := c.byName[name]
	return stream, ok
}

// buildSchema merges the embedded record template with the metric's label
// shape and trims mode-inapplicable properties.
// Params: metric spec with optional labels shape.
// Returns: schema document for the metric's stream.
func buildSchema(metric config.MetricConfig) (map[string]any, error) {
	// Re-unmarshal per metric so every stream owns an independent copy.
	var schema map[string]any
	if err := json.Unmarshal(rawSchemaTemplate, &schema); err != nil {
		return nil, fmt.Errorf("decode schema template: %w", err)
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema template has no properties object")
	}

	if len(metric.Labels) > 0 {
		properties["labels"] = metric.Labels
	}

	if metric.Mode() == config.ModeRaw {
		delete(properties, "metric")
		delete(properties, "aggregation")
	}

	return schema, nil
}

// keyProperties resolves the record identity set per extraction mode.
// Params: mode extraction mode.
// Returns: key property names in output order.
func keyProperties(mode config.Mode) []string {
	if mode == config.ModeAggregated {
		return []string{"date", "metric", "aggregation", "labels"}
	}
	return []string{"date", "labels"}
}
