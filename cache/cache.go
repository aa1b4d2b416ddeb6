package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/compresr/agent-pipeline/provider"
	"github.com/compresr/agent-pipeline/store"
)

// Snapshot is the serialized form of a cached result. Only successful
// responses are ever snapshotted; failures are never cached.
type Snapshot struct {
	Content         string             `json:"content"`
	Model           string             `json:"model"`
	InputTokens     int                `json:"input_tokens"`
	OutputTokens    int                `json:"output_tokens"`
	Segments        []provider.Segment `json:"segments,omitempty"`
	Language        string             `json:"language,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	CachedAt        time.Time          `json:"cached_at"`
}

// Response reconstructs a provider response from the snapshot. The response
// carries no cost: a cache hit incurs none.
func (s *Snapshot) Response() *provider.Response {
	return &provider.Response{
		Content: s.Content,
		Model:   s.Model,
		Usage: provider.Usage{
			InputTokens:  s.InputTokens,
			OutputTokens: s.OutputTokens,
		},
		Segments:        s.Segments,
		Language:        s.Language,
		DurationSeconds: s.DurationSeconds,
	}
}

// Layer is the response cache. At most one value exists per fingerprint;
// writes overwrite and refresh the TTL.
type Layer struct {
	kv  store.KV
	log zerolog.Logger
	now func() time.Time
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) LayerOption {
	return func(l *Layer) { l.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LayerOption {
	return func(l *Layer) { l.now = now }
}

// NewLayer creates a cache layer over the given KV store.
func NewLayer(kv store.KV, opts ...LayerOption) *Layer {
	l := &Layer{kv: kv, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup returns the cached snapshot for a fingerprint, if present. A
// corrupt entry is treated as a miss and deleted.
func (l *Layer) Lookup(ctx context.Context, fingerprint string) (*Snapshot, bool, error) {
	raw, ok, err := l.kv.Read(ctx, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("cache: lookup: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		l.log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache: dropping corrupt entry")
		_ = l.kv.Delete(ctx, fingerprint)
		return nil, false, nil
	}

	l.log.Debug().Str("fingerprint", fingerprint).Msg("cache: hit")
	return &snap, true, nil
}

// Store snapshots a successful response under the fingerprint with the
// given TTL.
func (l *Layer) Store(ctx context.Context, fingerprint string, resp *provider.Response, ttl time.Duration) error {
	snap := Snapshot{
		Content:         resp.Content,
		Model:           resp.Model,
		InputTokens:     resp.Usage.InputTokens,
		OutputTokens:    resp.Usage.OutputTokens,
		Segments:        resp.Segments,
		Language:        resp.Language,
		DurationSeconds: resp.DurationSeconds,
		CachedAt:        l.now(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	if err := l.kv.Write(ctx, fingerprint, string(data), ttl); err != nil {
		return fmt.Errorf("cache: store: %w", err)
	}
	return nil
}
