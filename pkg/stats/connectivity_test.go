package stats

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStore creates a miniredis instance and a store on top of it.
func setupRedisStore(t *testing.T) (*RedisConnectivity, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisConnectivity(client, "test:"), mr
}

// storeContract runs the behavior every ConnectivityStore must share.
func storeContract(t *testing.T, newStore func(t *testing.T) ConnectivityStore) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("set and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "e1", 0.72))
		v, ok, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 0.72, v, 1e-12)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "e1", 0.9))
		require.NoError(t, s.Set(ctx, "e1", 0.1))
		v, _, err := s.Get(ctx, "e1")
		require.NoError(t, err)
		assert.InDelta(t, 0.1, v, 1e-12)

		top, err := s.Top(ctx, 10)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.InDelta(t, 0.1, top[0].Score, 1e-12)
	})

	t.Run("top ordering", func(t *testing.T) {
		s := newStore(t)
		for id, score := range map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5, "d": 0.7} {
			require.NoError(t, s.Set(ctx, id, score))
		}
		top, err := s.Top(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, []string{"b", "d", "c"}, []string{top[0].ID, top[1].ID, top[2].ID})

		none, err := s.Top(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "a", 0.5))
		require.NoError(t, s.Clear(ctx))
		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		top, err := s.Top(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, top)
	})
}

func TestMemoryConnectivity(t *testing.T) {
	storeContract(t, func(*testing.T) ConnectivityStore { return NewMemoryConnectivity() })
}

func TestRedisConnectivity(t *testing.T) {
	storeContract(t, func(t *testing.T) ConnectivityStore {
		s, _ := setupRedisStore(t)
		return s
	})
}

func TestRedisConnectivityKeys(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, s.Set(context.Background(), "e1", 0.5))

	assert.True(t, mr.Exists("test:importance"))
	assert.True(t, mr.Exists("test:importance:rank"))
	assert.Equal(t, "0.5", mr.HGet("test:importance", "e1"))
}

func TestRedisConnectivityFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, client, err := NewRedisConnectivityFromURL(context.Background(), "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, s.Set(context.Background(), "x", 1))
	assert.True(t, mr.Exists(DefaultRedisPrefix+"importance"))

	_, _, err = NewRedisConnectivityFromURL(context.Background(), "://bad", "")
	assert.Error(t, err)
}

func TestRedisConnectivityErrors(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.SetError("ERR injected failure")

	_, _, err := s.Get(context.Background(), "e1")
	assert.Error(t, err)
	assert.Error(t, s.Set(context.Background(), "e1", 0.3))
}

func TestStoresAgreeOnTop(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryConnectivity()
	rs, _ := setupRedisStore(t)

	scores := map[string]float64{"n1": 0.11, "n2": 0.93, "n3": 0.47, "n4": 0.62, "n5": 0.05}
	for id, v := range scores {
		require.NoError(t, mem.Set(ctx, id, v))
		require.NoError(t, rs.Set(ctx, id, v))
	}

	want, err := mem.Top(ctx, 4)
	require.NoError(t, err)
	got, err := rs.Top(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoresAgreeOnTiesAtCutoff(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryConnectivity()
	rs, _ := setupRedisStore(t)

	scores := map[string]float64{"a": 0.9, "b": 0.4, "c": 0.4, "d": 0.4, "e": 0.1}
	for id, v := range scores {
		require.NoError(t, mem.Set(ctx, id, v))
		require.NoError(t, rs.Set(ctx, id, v))
	}

	for n := 1; n <= 6; n++ {
		want, err := mem.Top(ctx, n)
		require.NoError(t, err)
		got, err := rs.Top(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, want, got, "n=%d", n)
	}

	got, err := rs.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []EntityScore{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.4}}, got)
}

func TestTraversalStats(t *testing.T) {
	ctx := context.Background()
	ts := NewTraversalStats(nil)

	require.NoError(t, ts.SetImportance(ctx, "e1", 0.4))
	v, ok, err := ts.Importance(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.4, v)

	nan := 0.0
	assert.Error(t, ts.SetImportance(ctx, "e2", nan/nan))

	ts.ObserveEdges(map[string]int{"cites": 2, "links_to": 1})
	ts.ObserveEdges(map[string]int{"cites": 3, "ignored": 0})
	assert.Equal(t, map[string]int64{"cites": 5, "links_to": 1}, ts.EdgeObservations())

	top, err := ts.TopEntities(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []EntityScore{{ID: "e1", Score: 0.4}}, top)

	require.NoError(t, ts.Clear(ctx))
	assert.Empty(t, ts.EdgeObservations())
	_, ok, _ = ts.Importance(ctx, "e1")
	assert.False(t, ok)
}
