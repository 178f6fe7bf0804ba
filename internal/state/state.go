package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"promtap/internal/config"
)

// Store is the bookmark store: the single source of truth for resumption.
// It keeps, per metric, the unix timestamp of the next unprocessed window
// start and falls back to the run's configured start date when absent.
// Params: state file path, start date fallback, bookmark map.
// Returns: mutable single-threaded store.
type Store struct {
	path      string
	startUnix int64
	bookmarks map[string]string
}

type fileState struct {
	Bookmarks map[string]bookmark `json:"bookmarks"`
}

type bookmark struct {
	StartDate string `json:"start_date"`
}

// Open loads the store from path, validating every persisted bookmark.
// Params: path state file (empty disables durable flushes, a missing file
// yields an empty store); startUnix fallback for absent bookmarks.
// Returns: store or load error.
func Open(path string, startUnix int64) (*Store, error) {
	out := &Store{
		path:      path,
		startUnix: startUnix,
		bookmarks: make(map[string]string),
	}
	if path == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %q: %w", path, err)
	}

	var loaded fileState
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("decode state %q: %w", path, err)
	}

	for metric, entry := range loaded.Bookmarks {
		if _, err := time.ParseInLocation(config.DateFormat, entry.StartDate, time.UTC); err != nil {
			return nil, fmt.Errorf("state %q: bookmark for %q: %w", path, metric, err)
		}
		out.bookmarks[metric] = entry.StartDate
	}

	return out, nil
}

// Get resolves the next unprocessed window start for a metric.
// Params: metric stream/metric name.
// Returns: bookmark unix seconds, or the configured start date when absent.
func (s *Store) Get(metric string) int64 {
	value, ok := s.bookmarks[metric]
	if !ok {
		return s.startUnix
	}
	parsed, err := time.ParseInLocation(config.DateFormat, value, time.UTC)
	if err != nil {
		// Bookmarks are validated at Open and formatted by Set.
		return s.startUnix
	}
	return parsed.Unix()
}

// Set advances the bookmark for a metric. Bookmarks never move backwards.
// Params: metric stream/metric name; unix next unprocessed window start.
// Returns: none.
func (s *Store) Set(metric string, unix int64) {
	if unix < s.Get(metric) {
		return
	}
	s.bookmarks[metric] = time.Unix(unix, 0).UTC().Format(config.DateFormat)
}

// Snapshot renders the full bookmark map in wire shape.
// Params: none.
// Returns: state value for STATE messages and the durable file.
func (s *Store) Snapshot() map[string]any {
	bookmarks := make(map[string]any, len(s.bookmarks))
	for metric, value := range s.bookmarks {
		bookmarks[metric] = map[string]any{"start_date": value}
	}
	return map[string]any{"bookmarks": bookmarks}
}

// Flush durably writes the full bookmark map. Idempotent and safe to call
// redundantly; the write is atomic (temp file + rename) so a crash never
// leaves truncated state behind.
// Params: none.
// Returns: write error, nil when no state path is configured.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create state temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close state temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state %q: %w", s.path, err)
	}
	return nil
}
