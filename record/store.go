package record

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// Store persists execution records.
type Store interface {
	// Create appends one record.
	Create(ctx context.Context, rec *Record) error

	// StatsFor aggregates records for an agent type under the filters.
	StatsFor(ctx context.Context, agentType string, f Filters) (*Stats, error)
}

// MemoryStore keeps records in memory, for tests and single-process use.
type MemoryStore struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

// All returns a snapshot of every stored record, in insertion order.
func (s *MemoryStore) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Map(s.records, func(r *Record, _ int) *Record {
		clone := *r
		return &clone
	})
}

// StatsFor implements Store.
func (s *MemoryStore) StatsFor(_ context.Context, agentType string, f Filters) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matching := lo.Filter(s.records, func(r *Record, _ int) bool {
		if r.AgentType != agentType {
			return false
		}
		if f.TenantID != "" && r.TenantID != f.TenantID {
			return false
		}
		if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && r.StartedAt.After(f.Until) {
			return false
		}
		return true
	})

	stats := &Stats{}
	var totalDuration int64
	for _, r := range matching {
		stats.Count++
		switch r.Status {
		case StatusSuccess:
			stats.SuccessCount++
		case StatusError, StatusTimeout:
			stats.ErrorCount++
		}
		if r.CacheHit {
			stats.CacheHits++
		}
		stats.InputTokens += int64(r.InputTokens)
		stats.OutputTokens += int64(r.OutputTokens)
		stats.TotalCostUSD += r.TotalCostUSD
		totalDuration += r.DurationMs
	}
	if stats.Count > 0 {
		stats.AvgDurationMs = float64(totalDuration) / float64(stats.Count)
	}
	return stats, nil
}
