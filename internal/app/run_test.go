package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeTempConfig writes one TOML config for tests.
// Params: t test handle; body config content.
// Returns: config file path.
func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const testConfig = `
endpoint = "http://prometheus:9090"
start_date = "2026-01-01T00:00:00Z"

[[metrics]]
name = "node_load1"
query = "node_load1"
step = 60
batch = 10

[[metrics]]
name = "node_load1_daily"
query = "node_load1"
step = 300
period = "day"
aggregations = ["max", "avg"]
`

// TestRun_DiscoverPrintsCatalog verifies the discovery mode output document.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_DiscoverPrintsCatalog(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Runtime{
		ConfigPath: writeTempConfig(t, testConfig),
		Discover:   true,
		Stdout:     &out,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var document struct {
		Streams []struct {
			Stream        string         `json:"stream"`
			TapStreamID   string         `json:"tap_stream_id"`
			Schema        map[string]any `json:"schema"`
			KeyProperties []string       `json:"key_properties"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out.Bytes(), &document); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}

	if len(document.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(document.Streams))
	}

	raw := document.Streams[0]
	if raw.Stream != "node_load1" || raw.TapStreamID != "node_load1" {
		t.Fatalf("unexpected raw stream identity: %+v", raw)
	}
	if len(raw.KeyProperties) != 2 || raw.KeyProperties[0] != "date" || raw.KeyProperties[1] != "labels" {
		t.Fatalf("unexpected raw key properties: %v", raw.KeyProperties)
	}
	if _, ok := raw.Schema["properties"]; !ok {
		t.Fatalf("raw schema has no properties: %v", raw.Schema)
	}

	aggregated := document.Streams[1]
	if aggregated.Stream != "node_load1_daily" {
		t.Fatalf("unexpected aggregated stream: %+v", aggregated)
	}
	if len(aggregated.KeyProperties) != 4 {
		t.Fatalf("unexpected aggregated key properties: %v", aggregated.KeyProperties)
	}
}

// TestRun_RequiresConfigPath verifies the missing-config guard.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_RequiresConfigPath(t *testing.T) {
	if err := Run(context.Background(), Runtime{}); err == nil {
		t.Fatalf("expected config path error")
	}
}

// TestRun_RejectsInvalidConfig verifies validation failures surface.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_RejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, `endpoint = "http://prometheus:9090"`)
	if err := Run(context.Background(), Runtime{ConfigPath: path, Discover: true}); err == nil {
		t.Fatalf("expected validation error")
	}
}
