package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"promtap/internal/config"
)

// Sink consumes the three protocol message kinds per stream.
// Params: stream identity plus message payloads.
// Returns: error if the sink cannot process a message.
type Sink interface {
	WriteSchema(stream string, schema map[string]any, keyProperties []string) error
	WriteRecord(stream string, record any, extractedAt time.Time) error
	WriteState(value map[string]any) error
}

type schemaMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Schema        map[string]any `json:"schema"`
	KeyProperties []string       `json:"key_properties"`
}

type recordMessage struct {
	Type          string `json:"type"`
	Stream        string `json:"stream"`
	Record        any    `json:"record"`
	TimeExtracted string `json:"time_extracted"`
}

type stateMessage struct {
	Type  string         `json:"type"`
	Value map[string]any `json:"value"`
}

// MessageWriter renders protocol messages as JSON lines.
// Params: destination writer (stdout in sync mode).
// Returns: line-oriented protocol sink.
type MessageWriter struct {
	enc *json.Encoder
}

// NewMessageWriter creates a JSON line sink.
// Params: w destination writer.
// Returns: message writer instance.
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{enc: json.NewEncoder(w)}
}

// WriteSchema emits one SCHEMA message.
// Params: stream name; schema document; keyProperties record identity set.
// Returns: encode/write error.
func (w *MessageWriter) WriteSchema(stream string, schema map[string]any, keyProperties []string) error {
	message := schemaMessage{
		Type:          "SCHEMA",
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
	}
	if err := w.enc.Encode(message); err != nil {
		return fmt.Errorf("write schema for %q: %w", stream, err)
	}
	return nil
}

// WriteRecord emits one RECORD message.
// Params: stream name; record payload; extractedAt wall-clock extraction time.
// Returns: encode/write error.
func (w *MessageWriter) WriteRecord(stream string, record any, extractedAt time.Time) error {
	message := recordMessage{
		Type:          "RECORD",
		Stream:        stream,
		Record:        record,
		TimeExtracted: extractedAt.UTC().Format(config.DateFormat),
	}
	if err := w.enc.Encode(message); err != nil {
		return fmt.Errorf("write record for %q: %w", stream, err)
	}
	return nil
}

// WriteState emits one STATE message. The last message written wins.
// Params: value full bookmark map in wire shape.
// Returns: encode/write error.
func (w *MessageWriter) WriteState(value map[string]any) error {
	if err := w.enc.Encode(stateMessage{Type: "STATE", Value: value}); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LogSink mirrors protocol messages into debug logs.
// Params: logger used for output.
// Returns: debug sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a debug sink.
// Params: logger instance.
// Returns: protocol sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// WriteSchema logs one schema declaration.
// Params: stream name; schema is unused; keyProperties record identity set.
// Returns: nil.
func (s *LogSink) WriteSchema(stream string, _ map[string]any, keyProperties []string) error {
	s.logger.Debug(
		"schema declared",
		slog.String("stream", stream),
		slog.Any("key_properties", keyProperties),
	)
	return nil
}

// WriteRecord logs one record as compact JSON.
// Params: stream name; record payload; extractedAt is unused.
// Returns: marshal error when payload cannot be encoded.
func (s *LogSink) WriteRecord(stream string, record any, _ time.Time) error {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.logger.Debug(
		"record emitted",
		slog.String("stream", stream),
		slog.String("payload", string(payload)),
	)
	return nil
}

// WriteState logs one state checkpoint.
// Params: value full bookmark map.
// Returns: nil.
func (s *LogSink) WriteState(value map[string]any) error {
	s.logger.Debug("state checkpoint", slog.Any("value", value))
	return nil
}

// MultiSink fans every message out to all nested sinks.
// Params: nested sink list.
// Returns: fan-out sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink.
// Params: sinks nested sink list.
// Returns: sink writing to every nested sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// WriteSchema fans one schema message out.
// Params: same contract as Sink.WriteSchema.
// Returns: joined nested sink errors.
func (m *MultiSink) WriteSchema(stream string, schema map[string]any, keyProperties []string) error {
	var errs []error
	for _, sink := range m.sinks {
		errs = append(errs, sink.WriteSchema(stream, schema, keyProperties))
	}
	return errors.Join(errs...)
}

// WriteRecord fans one record message out.
// Params: same contract as Sink.WriteRecord.
// Returns: joined nested sink errors.
func (m *MultiSink) WriteRecord(stream string, record any, extractedAt time.Time) error {
	var errs []error
	for _, sink := range m.sinks {
		errs = append(errs, sink.WriteRecord(stream, record, extractedAt))
	}
	return errors.Join(errs...)
}

// WriteState fans one state message out.
// Params: same contract as Sink.WriteState.
// Returns: joined nested sink errors.
func (m *MultiSink) WriteState(value map[string]any) error {
	var errs []error
	for _, sink := range m.sinks {
		errs = append(errs, sink.WriteState(value))
	}
	return errors.Join(errs...)
}
