package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"promtap/internal/config"
)

// TestLoad_ExpandsEnvAndAppliesDefaults verifies env expansion and defaulting.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_PROM_ENDPOINT", "http://prom:9090")
	t.Setenv("TEST_PROM_PASSWORD", "s3cret")

	path := writeConfig(t, `
endpoint = "${TEST_PROM_ENDPOINT}"
start_date = "2026-01-01T00:00:00Z"

[auth]
username = "ops"
password = "${TEST_PROM_PASSWORD}"

[[metrics]]
name = "node_load1"
query = "node_load1"
step = 60
batch = 500
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Endpoint != "http://prom:9090" {
		t.Fatalf("unexpected endpoint: %q", cfg.Endpoint)
	}
	if cfg.Auth.Password != "s3cret" {
		t.Fatalf("unexpected password: %q", cfg.Auth.Password)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging to be enabled by default")
	}
	if got := cfg.Query.Timeout.Duration; got != 30*time.Second {
		t.Fatalf("unexpected default query timeout: %v", got)
	}
	if got := cfg.Query.RetryMax; got != 4 {
		t.Fatalf("unexpected default retry_max: %d", got)
	}
	if got := cfg.Query.RetryWait.Duration; got != 500*time.Millisecond {
		t.Fatalf("unexpected default retry_wait: %v", got)
	}
}

// TestLoad_ReportsAllMetricErrorsAtOnce verifies exhaustive validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ReportsAllMetricErrorsAtOnce(t *testing.T) {
	path := writeConfig(t, `
endpoint = "http://prom:9090"
start_date = "2026-01-01T00:00:00Z"

[[metrics]]
name = "weekly"
query = "up"
step = 300
period = "week"
aggregations = ["max"]

[[metrics]]
name = "p95_latency"
query = "latency"
step = 300
period = "day"
aggregations = ["p95"]

[[metrics]]
name = "both_modes"
query = "up"
step = 60
batch = 100
aggregations = ["avg"]

[[metrics]]
name = "no_mode"
query = "up"
step = 60
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}

	for _, want := range []string{
		`unsupported period "week"`,
		`unsupported aggregation "p95"`,
		"mutually exclusive",
		"either batch or aggregations is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error does not mention %q: %v", want, err)
		}
	}
}

// TestLoad_RejectsDuplicateNamesAndBadStartDate verifies identity checks.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsDuplicateNamesAndBadStartDate(t *testing.T) {
	path := writeConfig(t, `
endpoint = "http://prom:9090"
start_date = "01.01.2026"

[[metrics]]
name = "dup"
query = "up"
step = 60
batch = 10

[[metrics]]
name = "dup"
query = "up"
step = 60
batch = 10
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "duplicate metric name") {
		t.Fatalf("expected duplicate name error: %v", err)
	}
	if !strings.Contains(err.Error(), "parse start_date") {
		t.Fatalf("expected start_date error: %v", err)
	}
}

// TestMetricConfig_ModeAndReducers verifies mode resolution and alias handling.
// Params: testing.T for assertions.
// Returns: none.
func TestMetricConfig_ModeAndReducers(t *testing.T) {
	raw := config.MetricConfig{Name: "raw", Query: "up", Step: 60, Batch: 10}
	if raw.Mode() != config.ModeRaw {
		t.Fatalf("expected raw mode")
	}
	if got := raw.Reducers(); got != nil {
		t.Fatalf("expected no reducers, got %v", got)
	}

	aggregated := config.MetricConfig{
		Name: "agg", Query: "up", Step: 300,
		Period: config.PeriodDay, Aggregation: "avg",
	}
	if aggregated.Mode() != config.ModeAggregated {
		t.Fatalf("expected aggregated mode")
	}
	if got := aggregated.Reducers(); len(got) != 1 || got[0] != "avg" {
		t.Fatalf("expected aggregation alias to resolve, got %v", got)
	}
}

// TestConfig_StartUnix verifies start date parsing in UTC.
// Params: testing.T for assertions.
// Returns: none.
func TestConfig_StartUnix(t *testing.T) {
	cfg := config.Config{StartDate: "2026-01-02T03:04:05Z"}

	got, err := cfg.StartUnix()
	if err != nil {
		t.Fatalf("StartUnix() error: %v", err)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix()
	if got != want {
		t.Fatalf("unexpected start unix: got=%d want=%d", got, want)
	}
}

// TestLoad_ConfigDirMergesTomlFiles verifies config directory loading.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirMergesTomlFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "00-base.toml"), `
endpoint = "http://prom:9090"
start_date = "2026-01-01T00:00:00Z"
`)
	writeFile(t, filepath.Join(dir, "10-metrics.toml"), `
[[metrics]]
name = "node_load1"
query = "node_load1"
step = 60
batch = 500
`)

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config dir: %v", err)
	}
	if len(cfg.Metrics) != 1 || cfg.Metrics[0].Name != "node_load1" {
		t.Fatalf("unexpected metrics: %+v", cfg.Metrics)
	}
}

// writeConfig writes TOML content into a temp file.
// Params: testing.T for cleanup; content TOML body.
// Returns: config file path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, content)
	return path
}

// writeFile writes content into path.
// Params: testing.T for assertions; path target file; content file body.
// Returns: none.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
