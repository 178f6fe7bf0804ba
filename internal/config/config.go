package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel     = "info"
	defaultLogFormat    = "line"
	defaultQueryTimeout = 30 * time.Second
	defaultRetryMax     = 4
	defaultRetryWait    = 500 * time.Millisecond
	defaultPprofListen  = "127.0.0.1:6060"
)

// DateFormat is the wire representation of every timestamp this tap emits:
// record dates, time_extracted, and bookmark values.
const DateFormat = "2006-01-02T15:04:05Z"

// PeriodDay is the only supported aggregation period.
const PeriodDay = "day"

// PeriodDaySeconds is the window length of PeriodDay in seconds.
const PeriodDaySeconds int64 = 86400

// SupportedAggregations lists the reducer names accepted in metric specs.
var SupportedAggregations = []string{"max", "min", "avg"}

// Mode selects the extraction strategy of one metric.
// Params: none.
// Returns: enum value for raw/aggregated extraction.
type Mode uint8

const (
	// ModeRaw extracts every point in step-sized batches.
	ModeRaw Mode = iota
	// ModeAggregated reduces fixed periods into per-reducer scalars.
	ModeAggregated
)

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root tap configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Endpoint  string         `toml:"endpoint"`
	StartDate string         `toml:"start_date"`
	Auth      AuthConfig     `toml:"auth"`
	Query     QueryConfig    `toml:"query"`
	Log       LogConfig      `toml:"log"`
	Pprof     PprofConfig    `toml:"pprof"`
	Metrics   []MetricConfig `toml:"metrics"`
}

// AuthConfig contains optional basic auth credentials for the backend.
// Params: username/password pair from TOML.
// Returns: backend credentials.
type AuthConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// QueryConfig controls per-call timeout and the retry policy for range queries.
// Params: timeout, retry cap, and initial backoff interval.
// Returns: backend query runtime settings.
type QueryConfig struct {
	Timeout   Duration `toml:"timeout"`
	RetryMax  int      `toml:"retry_max"`
	RetryWait Duration `toml:"retry_wait"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// PprofConfig defines optional runtime pprof HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: pprof runtime settings.
type PprofConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// MetricConfig defines one configured metric spec.
// Params: stream identity, backend query, sampling step, and either a raw
// batch size or an aggregation list with a period. Labels carries the
// metric's label shape merged into its output schema.
// Returns: one immutable metric spec.
type MetricConfig struct {
	Name         string         `toml:"name"`
	Query        string         `toml:"query"`
	Step         int64          `toml:"step"`
	Batch        int64          `toml:"batch"`
	Period       string         `toml:"period"`
	Aggregation  string         `toml:"aggregation"`
	Aggregations []string       `toml:"aggregations"`
	Labels       map[string]any `toml:"labels"`
}

// Mode resolves the extraction strategy of the spec.
// Params: none.
// Returns: ModeAggregated when reducers are configured, ModeRaw otherwise.
func (m MetricConfig) Mode() Mode {
	if len(m.Reducers()) > 0 {
		return ModeAggregated
	}
	return ModeRaw
}

// Reducers resolves the configured reducer list.
// Params: none.
// Returns: aggregations list, or the single aggregation as a one-element list.
func (m MetricConfig) Reducers() []string {
	if len(m.Aggregations) > 0 {
		return m.Aggregations
	}
	if strings.TrimSpace(m.Aggregation) != "" {
		return []string{m.Aggregation}
	}
	return nil
}

// StartUnix parses the configured start date.
// Params: none.
// Returns: unix seconds of start_date or parse error.
func (c *Config) StartUnix() (int64, error) {
	parsed, err := time.ParseInLocation(DateFormat, c.StartDate, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse start_date %q: %w", c.StartDate, err)
	}
	return parsed.Unix(), nil
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: none.
func (c *Config) applyDefaults() {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	if c.Query.Timeout.Duration <= 0 {
		c.Query.Timeout.Duration = defaultQueryTimeout
	}
	if c.Query.RetryMax < 0 {
		c.Query.RetryMax = 0
	}
	if c.Query.RetryMax == 0 {
		c.Query.RetryMax = defaultRetryMax
	}
	if c.Query.RetryWait.Duration <= 0 {
		c.Query.RetryWait.Duration = defaultRetryWait
	}

	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Listen) == "" {
		c.Pprof.Listen = defaultPprofListen
	}
}

// validate checks the whole configuration and reports every metric error at once.
// Params: receiver config pointer.
// Returns: joined error listing all violations, nil when config is valid.
func (c *Config) validate() error {
	var errs []error

	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, fmt.Errorf("endpoint is required"))
	}
	if strings.TrimSpace(c.StartDate) == "" {
		errs = append(errs, fmt.Errorf("start_date is required"))
	} else if _, err := c.StartUnix(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Metrics) == 0 {
		errs = append(errs, fmt.Errorf("at least one [[metrics]] entry is required"))
	}

	seen := make(map[string]struct{}, len(c.Metrics))
	for idx := range c.Metrics {
		errs = append(errs, c.Metrics[idx].validate(idx, seen)...)
	}

	return errors.Join(errs...)
}

// validate checks one metric spec.
// Params: idx position in the metrics list; seen tracks duplicate names.
// Returns: list of violations for this spec.
func (m *MetricConfig) validate(idx int, seen map[string]struct{}) []error {
	var errs []error

	label := fmt.Sprintf("metrics[%d]", idx)
	name := strings.TrimSpace(m.Name)
	if name == "" {
		errs = append(errs, fmt.Errorf("%s: name is required", label))
	} else {
		label = fmt.Sprintf("metrics[%d] %q", idx, name)
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate metric name", label))
		}
		seen[name] = struct{}{}
	}

	if strings.TrimSpace(m.Query) == "" {
		errs = append(errs, fmt.Errorf("%s: query is required", label))
	}
	if m.Step <= 0 {
		errs = append(errs, fmt.Errorf("%s: step must be > 0", label))
	}

	reducers := m.Reducers()
	switch {
	case m.Batch > 0 && len(reducers) > 0:
		errs = append(errs, fmt.Errorf("%s: batch and aggregations are mutually exclusive", label))
	case m.Batch <= 0 && len(reducers) == 0:
		errs = append(errs, fmt.Errorf("%s: either batch or aggregations is required", label))
	}

	if len(reducers) > 0 {
		if m.Period != PeriodDay {
			errs = append(errs, fmt.Errorf("%s: unsupported period %q (only %q)", label, m.Period, PeriodDay))
		}
		for _, reducer := range reducers {
			if !isSupportedReducer(reducer) {
				errs = append(errs, fmt.Errorf(
					"%s: unsupported aggregation %q (supported: %s)",
					label, reducer, strings.Join(SupportedAggregations, ", "),
				))
			}
		}
	} else if strings.TrimSpace(m.Period) != "" {
		errs = append(errs, fmt.Errorf("%s: period requires aggregations", label))
	}

	return errs
}

// IsSupportedAggregation checks reducer name against the supported set.
// Params: name reducer name.
// Returns: true when the reducer is implemented.
func IsSupportedAggregation(name string) bool {
	return isSupportedReducer(name)
}

// isSupportedReducer checks reducer name against the supported set.
// Params: name configured reducer name.
// Returns: true when the reducer is implemented.
func isSupportedReducer(name string) bool {
	for _, supported := range SupportedAggregations {
		if name == supported {
			return true
		}
	}
	return false
}

// lowerOrDefault lowercases trimmed value or falls back to default.
// Params: value raw setting; fallback default value.
// Returns: normalized setting string.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}
