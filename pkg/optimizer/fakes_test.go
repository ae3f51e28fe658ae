package optimizer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sanonone/kektorplan/pkg/graph"
)

// searchOnly implements just graph.Processor.
type searchOnly struct {
	candidates []graph.VectorResult
	entities   map[string]graph.EntityInfo
	searchErr  error

	searchCalls atomic.Int32
	infoCalls   atomic.Int32
	lastK       atomic.Int32
	lastOpts    graph.VectorSearchOptions
}

func (s *searchOnly) VectorSearch(_ context.Context, _ []float32, k int, opts graph.VectorSearchOptions) ([]graph.VectorResult, error) {
	s.searchCalls.Add(1)
	s.lastK.Store(int32(k))
	s.lastOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.candidates) > k {
		return s.candidates[:k], nil
	}
	return s.candidates, nil
}

func (s *searchOnly) EntityInfo(_ context.Context, id string) (graph.EntityInfo, error) {
	s.infoCalls.Add(1)
	info, ok := s.entities[id]
	if !ok {
		return graph.EntityInfo{}, fmt.Errorf("%w: %s", graph.ErrEntityNotFound, id)
	}
	return info, nil
}

func (s *searchOnly) calls() int32 {
	return s.searchCalls.Load() + s.infoCalls.Load()
}

// fakeDAG replays canned batches through ExpandByDAGTraversal.
type fakeDAG struct {
	*searchOnly
	batches    [][]graph.Result
	expandErr  error
	ignoreStop bool

	expandCalls atomic.Int32
	gotOpts     graph.DAGOptions
	gotSeeds    []graph.Result
}

func (f *fakeDAG) ExpandByDAGTraversal(_ context.Context, seeds []graph.Result, opts graph.DAGOptions, fn graph.BatchFunc) error {
	f.expandCalls.Add(1)
	f.gotOpts = opts
	f.gotSeeds = seeds
	if f.expandErr != nil {
		return f.expandErr
	}
	for _, b := range f.batches {
		if !fn(b) && !f.ignoreStop {
			return nil
		}
	}
	return nil
}

// fakeGeneral replays canned batches through Expand.
type fakeGeneral struct {
	*searchOnly
	batches   [][]graph.Result
	expandErr error

	gotOpts graph.ExpandOptions
}

func (f *fakeGeneral) Expand(_ context.Context, _ []graph.Result, opts graph.ExpandOptions, fn graph.BatchFunc) error {
	f.gotOpts = opts
	if f.expandErr != nil {
		return f.expandErr
	}
	for _, b := range f.batches {
		if !fn(b) {
			return nil
		}
	}
	return nil
}

func connections(in, out int) graph.EntityInfo {
	info := graph.EntityInfo{}
	for i := 0; i < in; i++ {
		info.Inbound = append(info.Inbound, graph.Connection{ID: fmt.Sprintf("in%d", i), Relationship: "r"})
	}
	for i := 0; i < out; i++ {
		info.Outbound = append(info.Outbound, graph.Connection{ID: fmt.Sprintf("out%d", i), Relationship: "r"})
	}
	return info
}

// newDAGFake returns three CID-bearing seeds and n batches of three
// discovered nodes.
func newDAGFake(n int) *fakeDAG {
	so := &searchOnly{entities: map[string]graph.EntityInfo{}}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("seed%d", i)
		so.candidates = append(so.candidates, graph.VectorResult{
			ID:    id,
			Score: 1 - float64(i)/10,
			CID:   fmt.Sprintf("bafyreiseed%dxxxxxxxx", i),
		})
		so.entities[id] = connections(i, i+1)
	}
	f := &fakeDAG{searchOnly: so}
	for b := 1; b <= n; b++ {
		var batch []graph.Result
		for j := 0; j < 3; j++ {
			batch = append(batch, graph.Result{
				ID:           fmt.Sprintf("node%d_%d", b, j),
				Score:        0.5,
				Relationship: "links_to",
				Source:       "seed0",
				Depth:        b,
				CID:          fmt.Sprintf("bafyreinode%d%dxxxxxxxx", b, j),
				DAGBatch:     graph.Batch(b),
			})
		}
		f.batches = append(f.batches, batch)
	}
	return f
}
