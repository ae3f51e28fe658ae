package stats

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// TraversalStats memoizes entity importance and counts the edge types that
// executions have followed.
type TraversalStats struct {
	store ConnectivityStore

	mu    sync.Mutex
	edges map[string]int64
}

// NewTraversalStats creates a ledger backed by store. A nil store uses a
// fresh MemoryConnectivity.
func NewTraversalStats(store ConnectivityStore) *TraversalStats {
	if store == nil {
		store = NewMemoryConnectivity()
	}
	return &TraversalStats{store: store, edges: make(map[string]int64)}
}

// Store returns the backing ConnectivityStore.
func (t *TraversalStats) Store() ConnectivityStore { return t.store }

// Importance returns the memoized score for id. A miss is (0, false, nil).
func (t *TraversalStats) Importance(ctx context.Context, id string) (float64, bool, error) {
	return t.store.Get(ctx, id)
}

// SetImportance memoizes score for id, replacing any previous value.
func (t *TraversalStats) SetImportance(ctx context.Context, id string, score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("importance for %q is not finite: %v", id, score)
	}
	return t.store.Set(ctx, id, score)
}

// ObserveEdges adds per-type edge counts from one execution.
func (t *TraversalStats) ObserveEdges(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for edge, n := range counts {
		if n > 0 {
			t.edges[edge] += int64(n)
		}
	}
}

// EdgeObservations returns a copy of the accumulated edge counts.
func (t *TraversalStats) EdgeObservations() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.edges))
	for k, v := range t.edges {
		out[k] = v
	}
	return out
}

// TopEntities returns the n most important memoized entities.
func (t *TraversalStats) TopEntities(ctx context.Context, n int) ([]EntityScore, error) {
	return t.store.Top(ctx, n)
}

// Clear drops memoized scores and edge observations.
func (t *TraversalStats) Clear(ctx context.Context) error {
	t.mu.Lock()
	t.edges = make(map[string]int64)
	t.mu.Unlock()
	return t.store.Clear(ctx)
}
