package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/agent-pipeline/provider"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "executions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sqliteRecord(id string) *Record {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &Record{
		ID:            id,
		AgentType:     "summarizer",
		ExecutionType: provider.TypeChat,
		Model:         "gpt-x",
		Status:        StatusSuccess,
		InputTokens:   100,
		OutputTokens:  40,
		TotalCostUSD:  0.01,
		DurationMs:    800,
		StartedAt:     start,
		CompletedAt:   start.Add(800 * time.Millisecond),
		TenantID:      "acme",
	}
}

func TestSQLiteCreateAndStats(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sqliteRecord("r1")))
	require.NoError(t, store.Create(ctx, sqliteRecord("r2")))

	failed := sqliteRecord("r3")
	failed.Status = StatusError
	failed.ErrorClass = "*provider.Error"
	failed.ErrorMessage = "provider: 503 upstream unavailable"
	require.NoError(t, store.Create(ctx, failed))

	hit := sqliteRecord("r4")
	hit.CacheHit = true
	hit.TotalCostUSD = 0
	require.NoError(t, store.Create(ctx, hit))

	stats, err := store.StatsFor(ctx, "summarizer", Filters{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Count)
	assert.Equal(t, int64(3), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(400), stats.InputTokens)
	assert.Equal(t, int64(160), stats.OutputTokens)
	assert.InDelta(t, 0.03, stats.TotalCostUSD, 1e-9)
	assert.InDelta(t, 800.0, stats.AvgDurationMs, 1e-9)
}

func TestSQLiteDuplicateIDRejected(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sqliteRecord("r1")))
	assert.Error(t, store.Create(ctx, sqliteRecord("r1")))
}

func TestSQLiteStatsFilters(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	early := sqliteRecord("r1")
	early.StartedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, early))

	late := sqliteRecord("r2")
	late.StartedAt = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	late.TenantID = "globex"
	require.NoError(t, store.Create(ctx, late))

	stats, err := store.StatsFor(ctx, "summarizer", Filters{
		Since: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)

	stats, err = store.StatsFor(ctx, "summarizer", Filters{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)

	stats, err = store.StatsFor(ctx, "classifier", Filters{})
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}
