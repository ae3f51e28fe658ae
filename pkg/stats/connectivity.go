package stats

import (
	"context"
	"sync"

	"github.com/tidwall/btree"
)

// EntityScore is a memoized importance score.
type EntityScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// ConnectivityStore persists entity importance scores. Get reports a miss
// with ok == false and a nil error. Set overwrites (last write wins).
type ConnectivityStore interface {
	Get(ctx context.Context, id string) (score float64, ok bool, err error)
	Set(ctx context.Context, id string, score float64) error
	// Top returns up to n entries ordered by score, highest first.
	Top(ctx context.Context, n int) ([]EntityScore, error)
	Clear(ctx context.Context) error
}

// MemoryConnectivity is the in-process ConnectivityStore. Scores live in a
// map for lookups and in a B-tree for ranking.
type MemoryConnectivity struct {
	mu     sync.RWMutex
	scores map[string]float64
	rank   *btree.BTreeG[EntityScore]
}

// NewMemoryConnectivity creates an empty store.
func NewMemoryConnectivity() *MemoryConnectivity {
	return &MemoryConnectivity{
		scores: make(map[string]float64),
		rank:   btree.NewBTreeG[EntityScore](rankLess),
	}
}

// rankLess orders by score descending, then ID ascending so that entries
// with equal scores stay distinct.
func rankLess(a, b EntityScore) bool {
	if a.Score > b.Score {
		return true
	}
	if a.Score < b.Score {
		return false
	}
	return a.ID < b.ID
}

func (m *MemoryConnectivity) Get(_ context.Context, id string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scores[id]
	return v, ok, nil
}

func (m *MemoryConnectivity) Set(_ context.Context, id string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.scores[id]; ok {
		m.rank.Delete(EntityScore{ID: id, Score: old})
	}
	m.scores[id] = score
	m.rank.Set(EntityScore{ID: id, Score: score})
	return nil
}

func (m *MemoryConnectivity) Top(_ context.Context, n int) ([]EntityScore, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EntityScore, 0, min(n, m.rank.Len()))
	m.rank.Scan(func(e EntityScore) bool {
		out = append(out, e)
		return len(out) < n
	})
	return out, nil
}

func (m *MemoryConnectivity) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = make(map[string]float64)
	m.rank = btree.NewBTreeG[EntityScore](rankLess)
	return nil
}

// Len returns the number of memoized scores.
func (m *MemoryConnectivity) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}
