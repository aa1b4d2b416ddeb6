package alert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger at warn level.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, ev Event) {
	s.log.Warn().
		Str("kind", string(ev.Kind)).
		Str("scope", ev.Scope).
		Str("period", ev.Period).
		Str("dimension", ev.Dimension).
		Str("tenant_id", ev.TenantID).
		Str("agent_type", ev.AgentType).
		Float64("limit", ev.Limit).
		Float64("current", ev.Current).
		Msg("budget: limit crossed")
}

// JSONLSink appends events to a file, one JSON object per line. Events are
// flushed immediately so external tooling can tail the file in real time.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

// NewJSONLSink creates the parent directory and an empty file if needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			_ = f.Close()
		}
	}
	return &JSONLSink{path: path}, nil
}

// Notify implements Sink. Write failures are silent: alerting is
// best-effort and must never fail an invocation.
func (s *JSONLSink) Notify(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.Write(data)
}
