package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/agent-pipeline/provider"
	"github.com/compresr/agent-pipeline/store"
)

func TestLayerRoundtrip(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(store.NewMemory())

	resp := &provider.Response{
		Content: "four score and seven",
		Model:   "gpt-x",
		Usage:   provider.Usage{InputTokens: 12, OutputTokens: 5},
	}
	require.NoError(t, layer.Store(ctx, "k1", resp, time.Hour))

	snap, ok, err := layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	got := snap.Response()
	assert.Equal(t, resp.Content, got.Content)
	assert.Equal(t, resp.Model, got.Model)
	assert.Equal(t, 12, got.Usage.InputTokens)
	assert.Equal(t, 5, got.Usage.OutputTokens)
	assert.Nil(t, got.Usage.CostUSD, "cache hits carry no cost")
}

func TestLayerMiss(t *testing.T) {
	layer := NewLayer(store.NewMemory())

	snap, ok, err := layer.Lookup(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestLayerExpiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	kv := store.NewMemory(store.WithClock(now))
	layer := NewLayer(kv, WithClock(now))

	require.NoError(t, layer.Store(ctx, "k1", &provider.Response{Content: "x"}, time.Hour))

	clock = clock.Add(59 * time.Minute)
	_, ok, err := layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(2 * time.Minute)
	_, ok, err = layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLayerCorruptEntryIsDroppedMiss(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	layer := NewLayer(kv)

	require.NoError(t, kv.Write(ctx, "k1", "{not json", time.Hour))

	snap, ok, err := layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)

	// The corrupt value is gone, not left to fail every future lookup.
	exists, err := kv.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLayerOverwriteRefreshes(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(store.NewMemory())

	require.NoError(t, layer.Store(ctx, "k1", &provider.Response{Content: "old"}, time.Hour))
	require.NoError(t, layer.Store(ctx, "k1", &provider.Response{Content: "new"}, time.Hour))

	snap, ok, err := layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", snap.Content)
}

func TestSnapshotCarriesTranscriptionFields(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(store.NewMemory())

	resp := &provider.Response{
		Content:         "hello world",
		Model:           "whisper-1",
		Language:        "en",
		DurationSeconds: 3.5,
		Segments: []provider.Segment{
			{Start: 0, End: 3.5, Text: "hello world"},
		},
	}
	require.NoError(t, layer.Store(ctx, "k1", resp, time.Hour))

	snap, ok, err := layer.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	got := snap.Response()
	assert.Equal(t, "en", got.Language)
	assert.InDelta(t, 3.5, got.DurationSeconds, 1e-9)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, "hello world", got.Segments[0].Text)
}
