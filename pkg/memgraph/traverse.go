package memgraph

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sanonone/kektorplan/pkg/graph"
)

// Expand walks outgoing edges breadth first from seeds, delivering one
// batch per depth level. Every node is reported at most once and seeds are
// never reported. A child's score is its parent's score times the edge
// weight.
func (s *Store) Expand(ctx context.Context, seeds []graph.Result, opts graph.ExpandOptions, fn graph.BatchFunc) error {
	visited := roaring.New()
	frontier := s.origins(seeds, visited, nil, false)

	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		level, err := s.nextLevel(frontier, depth, opts.EdgeTypes, false, func(n *node) bool {
			return visited.CheckedAdd(n.idx)
		})
		if err != nil {
			return err
		}
		if len(level) == 0 {
			return nil
		}
		if !fn(level) {
			return nil
		}
		frontier = level
	}
	return nil
}

// ExpandByDAGTraversal walks content-addressed nodes only. With
// BatchLoading each level is split into batches of BatchSize, otherwise
// every level is one batch. Batches are numbered from 1.
func (s *Store) ExpandByDAGTraversal(ctx context.Context, seeds []graph.Result, opts graph.DAGOptions, fn graph.BatchFunc) error {
	visited := roaring.New()
	seenCID := make(map[string]struct{})
	frontier := s.origins(seeds, visited, seenCID, true)

	batchNo := 0
	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		level, err := s.nextLevel(frontier, depth, opts.EdgeTypes, opts.EnablePathCaching, func(n *node) bool {
			if n.cid == "" {
				return false
			}
			if opts.VisitNodesOnce && !visited.CheckedAdd(n.idx) {
				return false
			}
			if opts.UseCIDPathOptimization {
				if _, dup := seenCID[n.cid]; dup {
					return false
				}
				seenCID[n.cid] = struct{}{}
			}
			return true
		})
		if err != nil {
			return err
		}
		if len(level) == 0 {
			return nil
		}

		size := len(level)
		if opts.BatchLoading && opts.BatchSize > 0 {
			size = opts.BatchSize
		}
		for start := 0; start < len(level); start += size {
			if start > 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			batchNo++
			batch := level[start:min(start+size, len(level))]
			for i := range batch {
				batch[i].DAGBatch = graph.Batch(batchNo)
			}
			if !fn(batch) {
				return nil
			}
		}
		frontier = level
	}
	return nil
}

// origins resolves seeds to known nodes and marks them visited.
func (s *Store) origins(seeds []graph.Result, visited *roaring.Bitmap, seenCID map[string]struct{}, needCID bool) []graph.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]graph.Result, 0, len(seeds))
	for _, sd := range seeds {
		n, ok := s.nodes[sd.ID]
		if !ok || (needCID && n.cid == "") {
			continue
		}
		if !visited.CheckedAdd(n.idx) {
			continue
		}
		if seenCID != nil {
			seenCID[n.cid] = struct{}{}
		}
		out = append(out, sd)
	}
	return out
}

// nextLevel expands frontier by one hop. accept decides whether a reached
// node is reported. The read lock is released before the caller sees the
// level so batch callbacks may call back into the store.
func (s *Store) nextLevel(frontier []graph.Result, depth int, edgeTypes []string, useCache bool, accept func(*node) bool) ([]graph.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var level []graph.Result
	for _, parent := range frontier {
		n, ok := s.nodes[parent.ID]
		if !ok {
			continue
		}
		kids, err := s.children(n, edgeTypes, useCache)
		if err != nil {
			return nil, err
		}
		for _, c := range kids {
			cn, ok := s.nodes[c.id]
			if !ok || !accept(cn) {
				continue
			}
			level = append(level, graph.Result{
				ID:           cn.id,
				Score:        parent.Score * c.weight,
				Relationship: c.rel,
				Source:       parent.ID,
				Depth:        depth,
				CID:          cn.cid,
				Metadata:     metadata(cn),
			})
		}
	}
	return level, nil
}
