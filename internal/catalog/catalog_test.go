package catalog_test

import (
	"reflect"
	"testing"

	"promtap/internal/catalog"
	"promtap/internal/config"
)

func testMetrics() []config.MetricConfig {
	return []config.MetricConfig{
		{
			Name: "node_load1", Query: "node_load1", Step: 60, Batch: 500,
			Labels: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"instance": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name: "api_latency_daily", Query: "latency", Step: 300,
			Period: config.PeriodDay, Aggregations: []string{"max", "min", "avg"},
		},
	}
}

// TestDiscover_MergesLabelShapeIntoSchema verifies template/label merge.
// Params: testing.T for assertions.
// Returns: none.
func TestDiscover_MergesLabelShapeIntoSchema(t *testing.T) {
	cat, err := catalog.Discover(testMetrics())
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	stream, ok := cat.Lookup("node_load1")
	if !ok {
		t.Fatalf("stream node_load1 not found")
	}

	properties, ok := stream.Schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", stream.Schema)
	}

	labels, ok := properties["labels"].(map[string]any)
	if !ok {
		t.Fatalf("labels shape was not merged: %v", properties)
	}
	labelProps, ok := labels["properties"].(map[string]any)
	if !ok {
		t.Fatalf("label properties missing: %v", labels)
	}
	if _, ok := labelProps["instance"]; !ok {
		t.Fatalf("instance label missing: %v", labelProps)
	}
}

// TestDiscover_ModeShapesSchemaAndKeys verifies per-mode property sets.
// Params: testing.T for assertions.
// Returns: none.
func TestDiscover_ModeShapesSchemaAndKeys(t *testing.T) {
	cat, err := catalog.Discover(testMetrics())
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	raw, _ := cat.Lookup("node_load1")
	rawProps := raw.Schema["properties"].(map[string]any)
	if _, ok := rawProps["metric"]; ok {
		t.Fatalf("raw schema must not carry metric property")
	}
	if _, ok := rawProps["aggregation"]; ok {
		t.Fatalf("raw schema must not carry aggregation property")
	}
	if want := []string{"date", "labels"}; !reflect.DeepEqual(raw.KeyProperties, want) {
		t.Fatalf("unexpected raw key properties: %v", raw.KeyProperties)
	}

	aggregated, _ := cat.Lookup("api_latency_daily")
	aggProps := aggregated.Schema["properties"].(map[string]any)
	for _, name := range []string{"date", "metric", "aggregation", "labels", "value"} {
		if _, ok := aggProps[name]; !ok {
			t.Fatalf("aggregated schema missing %q: %v", name, aggProps)
		}
	}
	want := []string{"date", "metric", "aggregation", "labels"}
	if !reflect.DeepEqual(aggregated.KeyProperties, want) {
		t.Fatalf("unexpected aggregated key properties: %v", aggregated.KeyProperties)
	}
}

// TestDiscover_StreamsIndependentAndOrdered verifies copy isolation and order.
// Params: testing.T for assertions.
// Returns: none.
func TestDiscover_StreamsIndependentAndOrdered(t *testing.T) {
	cat, err := catalog.Discover(testMetrics())
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	streams := cat.Streams()
	if len(streams) != 2 {
		t.Fatalf("unexpected stream count: %d", len(streams))
	}
	if streams[0].Name != "node_load1" || streams[1].Name != "api_latency_daily" {
		t.Fatalf("unexpected stream order: %v, %v", streams[0].Name, streams[1].Name)
	}

	// Mutating one stream's schema must not leak into the other.
	props := streams[0].Schema["properties"].(map[string]any)
	props["date"] = "poisoned"
	otherProps := streams[1].Schema["properties"].(map[string]any)
	if _, ok := otherProps["date"].(map[string]any); !ok {
		t.Fatalf("schema copies are shared between streams")
	}
}

// TestDiscover_RejectsDuplicateStreams verifies duplicate guard.
// Params: testing.T for assertions.
// Returns: none.
func TestDiscover_RejectsDuplicateStreams(t *testing.T) {
	metrics := []config.MetricConfig{
		{Name: "dup", Query: "up", Step: 60, Batch: 10},
		{Name: "dup", Query: "up", Step: 60, Batch: 10},
	}
	if _, err := catalog.Discover(metrics); err == nil {
		t.Fatalf("expected duplicate stream error")
	}
}
