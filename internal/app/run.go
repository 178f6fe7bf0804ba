package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"promtap/internal/catalog"
	"promtap/internal/config"
	"promtap/internal/logging"
	"promtap/internal/match"
	"promtap/internal/pipeline"
	"promtap/internal/promapi"
	"promtap/internal/state"
)

// Runtime defines runtime inputs required to start the tap.
// Params: ConfigPath points to the TOML configuration file or directory;
// StatePath optionally points to the durable bookmark file; Select optionally
// restricts the run to matching streams; Discover switches to catalog output;
// Stdout carries protocol or catalog output.
// Returns: Runtime value used by Run.
type Runtime struct {
	ConfigPath string
	StatePath  string
	Select     []string
	Discover   bool
	Stdout     io.Writer
}

// Run loads configuration and executes one extraction pass, or prints the
// stream catalog in discovery mode.
// Params: ctx controls lifecycle; rt provides runtime inputs.
// Returns: error on startup or extraction failure, nil on success.
func Run(ctx context.Context, rt Runtime) error {
	if strings.TrimSpace(rt.ConfigPath) == "" {
		return fmt.Errorf("config path is required")
	}
	stdout := rt.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	cfg, err := config.Load(rt.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cat, err := catalog.Discover(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("discover streams: %w", err)
	}

	if rt.Discover {
		return writeCatalog(stdout, cat)
	}

	logger, closeLogger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopPprof, err := startPprofServer(runCtx, cfg.Pprof, logger)
	if err != nil {
		return fmt.Errorf("start pprof: %w", err)
	}
	defer stopPprof()

	engine, err := buildEngine(cfg, rt, logger, cat, stdout)
	if err != nil {
		return err
	}

	logStartup(logger, cfg, rt)
	if err := engine.Run(runCtx); err != nil {
		logger.Error("extraction failed", slog.String("error", err.Error()))
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("extraction complete")
	return nil
}

// buildEngine assembles the extraction engine from validated config.
// Params: cfg validated config; rt runtime inputs; logger initialized logger;
// cat discovered stream catalog; stdout protocol output writer.
// Returns: ready engine or startup error.
func buildEngine(
	cfg *config.Config,
	rt Runtime,
	logger *slog.Logger,
	cat *catalog.Catalog,
	stdout io.Writer,
) (*pipeline.Engine, error) {
	startUnix, err := cfg.StartUnix()
	if err != nil {
		return nil, fmt.Errorf("parse start_date: %w", err)
	}

	store, err := state.Open(rt.StatePath, startUnix)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	client, err := promapi.NewClient(promapi.ClientConfig{
		Endpoint: cfg.Endpoint,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Timeout:  cfg.Query.Timeout.Duration,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init backend client: %w", err)
	}
	client = promapi.WithRetry(client, promapi.RetryConfig{
		MaxRetries: cfg.Query.RetryMax,
		RetryWait:  cfg.Query.RetryWait.Duration,
	}, logger)

	var sink pipeline.Sink = pipeline.NewMessageWriter(stdout)
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		sink = pipeline.NewMultiSink(sink, pipeline.NewLogSink(logger))
	}

	engine, err := pipeline.New(pipeline.Config{
		Client:   client,
		Catalog:  cat,
		State:    store,
		Sink:     sink,
		Logger:   logger,
		Metrics:  cfg.Metrics,
		Selector: match.NewSelector(rt.Select),
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return engine, nil
}

type catalogStream struct {
	Stream        string         `json:"stream"`
	TapStreamID   string         `json:"tap_stream_id"`
	Schema        map[string]any `json:"schema"`
	KeyProperties []string       `json:"key_properties"`
}

type catalogDocument struct {
	Streams []catalogStream `json:"streams"`
}

// writeCatalog renders the discovered stream catalog as indented JSON.
// Params: w output writer; cat discovered catalog.
// Returns: encode/write error.
func writeCatalog(w io.Writer, cat *catalog.Catalog) error {
	document := catalogDocument{Streams: make([]catalogStream, 0, len(cat.Streams()))}
	for _, stream := range cat.Streams() {
		document.Streams = append(document.Streams, catalogStream{
			Stream:        stream.Name,
			TapStreamID:   stream.Name,
			Schema:        stream.Schema,
			KeyProperties: stream.KeyProperties,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// logStartup emits initial startup metadata.
// Params: logger is initialized slog logger; cfg is validated runtime config;
// rt runtime inputs.
// Returns: none.
func logStartup(logger *slog.Logger, cfg *config.Config, rt Runtime) {
	logger.Info(
		"tap started",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("start_date", cfg.StartDate),
		slog.Int("metrics", len(cfg.Metrics)),
		slog.Bool("durable_state", rt.StatePath != ""),
	)
}
