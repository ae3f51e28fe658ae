package memgraph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Graph relationship model
// Outgoing: "rel:<source_id>:<relation_type>" -> JSON EdgeList of targets
// Incoming: "rev:<target_id>:<relation_type>" -> JSON EdgeList of sources

const (
	relPrefix = "rel:"
	revPrefix = "rev:"
)

func makeRelKey(sourceID, relType string) string {
	return fmt.Sprintf("%s%s:%s", relPrefix, sourceID, relType)
}

func makeRevKey(targetID, relType string) string {
	return fmt.Sprintf("%s%s:%s", revPrefix, targetID, relType)
}

// Edge is one entry of an adjacency list. TargetID is the node at the far
// end: the target for outgoing lists, the source for incoming ones.
type Edge struct {
	TargetID  string  `json:"t"`
	CreatedAt int64   `json:"c"`
	Weight    float64 `json:"w"`
}

// EdgeList is the value stored under an adjacency key.
type EdgeList []Edge

func (s *Store) readEdges(key string) (EdgeList, error) {
	val, found := s.kv.Get(key)
	if !found {
		return nil, nil
	}
	var edges EdgeList
	if err := json.Unmarshal(val, &edges); err != nil {
		return nil, fmt.Errorf("memgraph: corrupt adjacency list %q: %w", key, err)
	}
	return edges, nil
}

func (s *Store) writeEdges(key string, edges EdgeList) error {
	if len(edges) == 0 {
		s.kv.Delete(key)
		return nil
	}
	val, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	s.kv.Set(key, val)
	return nil
}

// upsertEdge adds other to the list under key or updates its weight.
func (s *Store) upsertEdge(key, other string, weight float64) error {
	edges, err := s.readEdges(key)
	if err != nil {
		return err
	}
	for i := range edges {
		if edges[i].TargetID == other {
			edges[i].Weight = weight
			return s.writeEdges(key, edges)
		}
	}
	edges = append(edges, Edge{TargetID: other, CreatedAt: time.Now().UnixNano(), Weight: weight})
	return s.writeEdges(key, edges)
}

// removeEdge drops other from the list under key. It reports whether
// anything changed and whether the list is now empty.
func (s *Store) removeEdge(key, other string) (changed, empty bool, err error) {
	edges, err := s.readEdges(key)
	if err != nil || len(edges) == 0 {
		return false, len(edges) == 0, err
	}
	kept := edges[:0]
	for _, e := range edges {
		if e.TargetID == other {
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	if !changed {
		return false, false, nil
	}
	return true, len(kept) == 0, s.writeEdges(key, kept)
}

// Link creates or updates the directed edge src -[rel]-> dst. A
// non-positive weight is stored as 1.
func (s *Store) Link(src, dst, rel string, weight float64) error {
	if rel == "" {
		return fmt.Errorf("memgraph: relationship type is required")
	}
	if weight <= 0 {
		weight = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.nodes[src]
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, src)
	}
	to, ok := s.nodes[dst]
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, dst)
	}

	if err := s.upsertEdge(makeRelKey(src, rel), dst, weight); err != nil {
		return err
	}
	if err := s.upsertEdge(makeRevKey(dst, rel), src, weight); err != nil {
		return fmt.Errorf("failed to create inverse link: %w", err)
	}
	from.outTypes[rel] = struct{}{}
	to.inTypes[rel] = struct{}{}
	s.invalidatePaths()
	return nil
}

// Unlink removes the edge src -[rel]-> dst and reports whether it existed.
func (s *Store) Unlink(src, dst, rel string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, empty, err := s.removeEdge(makeRelKey(src, rel), dst)
	if err != nil || !changed {
		return false, err
	}
	if n, ok := s.nodes[src]; ok && empty {
		delete(n.outTypes, rel)
	}
	_, empty, err = s.removeEdge(makeRevKey(dst, rel), src)
	if err != nil {
		return true, fmt.Errorf("failed to remove inverse link: %w", err)
	}
	if n, ok := s.nodes[dst]; ok && empty {
		delete(n.inTypes, rel)
	}
	s.invalidatePaths()
	return true, nil
}

// Links returns the outgoing edges of src with type rel.
func (s *Store) Links(src, rel string) (EdgeList, error) {
	return s.readEdges(makeRelKey(src, rel))
}

// Incoming returns the edges of type rel pointing at dst. Each Edge's
// TargetID is the source node.
func (s *Store) Incoming(dst, rel string) (EdgeList, error) {
	return s.readEdges(makeRevKey(dst, rel))
}
