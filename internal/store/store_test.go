package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petsync/sureflap-sync/pkg/model"
)

func TestJoinSplit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a/b/c", Join("a", "b", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, Split("a/b/c"))
	assert.Nil(t, Split(""))
	assert.Equal(t, "a", Join("a"))
}

func TestMemoryStoreSetGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "home/flap/battery")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "home/flap/battery", 6.0))
	v, ok, err := s.Get(ctx, "home/flap/battery")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6.0, v)
	assert.Equal(t, 1, s.SetCalls("home/flap/battery"))

	require.NoError(t, s.Set(ctx, "home/flap/battery", 5.9))
	assert.Equal(t, 2, s.SetCalls("home/flap/battery"))

	s.ResetCounters()
	assert.Zero(t, s.SetCalls("home/flap/battery"))
}

func TestMemoryStoreEnsureObject(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.EnsureObject(ctx, "home/flap", model.KindDevice))
	ok, err := s.Exists(ctx, "home/flap")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent.
	require.NoError(t, s.EnsureObject(ctx, "home/flap", model.KindDevice))
}

func TestMemoryStoreDeleteSubtree(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "home/history/0/type", 0))
	require.NoError(t, s.Set(ctx, "home/history/1/type", 6))
	require.NoError(t, s.Set(ctx, "home/historic", "keep"))
	require.NoError(t, s.EnsureObject(ctx, "home/history/0", model.KindFolder))

	require.NoError(t, s.Delete(ctx, "home/history"))

	for _, path := range []string{"home/history/0/type", "home/history/1/type", "home/history/0"} {
		ok, err := s.Exists(ctx, path)
		require.NoError(t, err)
		assert.False(t, ok, path)
	}

	// A sibling sharing the name prefix survives.
	ok, err := s.Exists(ctx, "home/historic")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreIntents(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	intent := model.WriteIntent{Path: []string{"home", "flap", "control", "lockmode"}, Value: float64(1)}
	s.Submit(intent)

	got := <-s.Intents()
	assert.Equal(t, intent, got)
}
