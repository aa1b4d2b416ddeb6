package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/compresr/agent-pipeline/provider"
)

// Execution carries the facts the pipeline knows about one terminal call.
type Execution struct {
	AgentType     string
	ExecutionType provider.ExecutionType
	Model         string
	TenantID      string
	StartedAt     time.Time
	CompletedAt   time.Time
	Usage         provider.Usage
	CostUSD       float64
	CacheHit      bool

	// Meta is free-form diagnostic data folded into the record's
	// metadata JSON.
	Meta map[string]any
}

// Recorder turns executions into persisted records. Store failures are
// logged and swallowed: accounting is best-effort, never load-bearing for
// the user-visible call.
type Recorder struct {
	store Store
	log   zerolog.Logger

	// async mode hands records to a background worker instead of writing
	// inline.
	ch   chan *Record
	wg   sync.WaitGroup
	once sync.Once
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = log }
}

// WithAsync buffers record writes through a background worker. bufferSize
// bounds in-flight records; when the buffer is full, writes fall back to
// inline so records are never dropped silently.
func WithAsync(bufferSize int) RecorderOption {
	return func(r *Recorder) {
		if bufferSize <= 0 {
			bufferSize = 256
		}
		r.ch = make(chan *Record, bufferSize)
	}
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.ch != nil {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Close drains the async worker. A no-op for synchronous recorders.
func (r *Recorder) Close() {
	if r.ch == nil {
		return
	}
	r.once.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for rec := range r.ch {
		r.write(context.Background(), rec)
	}
}

func (r *Recorder) write(ctx context.Context, rec *Record) {
	if err := r.store.Create(ctx, rec); err != nil {
		r.log.Warn().Err(err).
			Str("agent_type", rec.AgentType).
			Str("record_id", rec.ID).
			Msg("record: execution write failed")
	}
}

func (r *Recorder) submit(ctx context.Context, rec *Record) {
	if r.ch != nil {
		select {
		case r.ch <- rec:
			return
		default:
			// Buffer full: write inline rather than drop.
		}
	}
	r.write(ctx, rec)
}

// RecordSuccess persists a success record. Cost derivation is two-phase:
// tokens are recorded as reported and CostUSD is the cost the pipeline
// derived from them (or the provider-reported figure).
func (r *Recorder) RecordSuccess(ctx context.Context, ex Execution) {
	rec := r.build(ex)
	rec.Status = StatusSuccess
	r.submit(ctx, rec)
}

// RecordFailure persists an error record carrying the error class and
// message for diagnostics.
func (r *Recorder) RecordFailure(ctx context.Context, ex Execution, cause error) {
	rec := r.build(ex)
	rec.Status = StatusError
	if cause != nil {
		rec.ErrorClass = fmt.Sprintf("%T", cause)
		rec.ErrorMessage = cause.Error()
		if ctx.Err() != nil || isTimeout(cause) {
			rec.Status = StatusTimeout
		}
	}
	r.submit(ctx, rec)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

func (r *Recorder) build(ex Execution) *Record {
	completed := ex.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	rec := &Record{
		ID:            uuid.New().String(),
		AgentType:     ex.AgentType,
		ExecutionType: ex.ExecutionType,
		Model:         ex.Model,
		InputTokens:   ex.Usage.InputTokens,
		OutputTokens:  ex.Usage.OutputTokens,
		TotalCostUSD:  ex.CostUSD,
		StartedAt:     ex.StartedAt,
		CompletedAt:   completed,
		DurationMs:    completed.Sub(ex.StartedAt).Milliseconds(),
		TenantID:      ex.TenantID,
		CacheHit:      ex.CacheHit,
	}
	if rec.DurationMs < 0 {
		rec.DurationMs = 0
	}
	rec.Metadata = buildMetadata(ex)
	return rec
}

// buildMetadata assembles the metadata JSON. sjson tolerates any value type
// and keeps the object valid even when individual sets fail.
func buildMetadata(ex Execution) string {
	if len(ex.Meta) == 0 && ex.Usage.CacheCreationTokens == 0 && ex.Usage.CacheReadTokens == 0 {
		return ""
	}

	out := "{}"
	for key, val := range ex.Meta {
		if next, err := sjson.Set(out, key, val); err == nil {
			out = next
		}
	}
	if ex.Usage.CacheCreationTokens > 0 {
		out, _ = sjson.Set(out, "cache_creation_tokens", ex.Usage.CacheCreationTokens)
	}
	if ex.Usage.CacheReadTokens > 0 {
		out, _ = sjson.Set(out, "cache_read_tokens", ex.Usage.CacheReadTokens)
	}
	return out
}
