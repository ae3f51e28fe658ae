// Package memgraph is an in-memory hybrid store: vectors for similarity
// search plus a typed, weighted property graph, with optional
// content-addressed blocks.
//
// Nodes added with AddBlock are stored as immutable blocks (half-precision
// vector plus JSON properties) keyed by their CID, which makes the store
// usable as an IPLD-style DAG. Store implements both graph.GeneralProcessor
// and graph.DAGProcessor.
package memgraph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sanonone/kektorplan/pkg/graph"
)

var errNotFound = graph.ErrEntityNotFound

// ErrInvalidFilter wraps every filter parse failure.
var ErrInvalidFilter = graph.ErrInvalidFilter

var (
	_ graph.GeneralProcessor = (*Store)(nil)
	_ graph.DAGProcessor     = (*Store)(nil)
)

const defaultBlockBatchSize = 256

type node struct {
	id    string
	idx   uint32
	kind  string
	props map[string]any
	// vector is nil for block nodes; their vector lives in the block.
	vector []float32
	cid    string

	outTypes map[string]struct{}
	inTypes  map[string]struct{}
}

type child struct {
	id     string
	rel    string
	weight float64
}

// Option configures a Store.
type Option func(*Store)

// WithReducedDimensions sets how many leading dimensions are compared when
// a search asks for dimensionality reduction. Zero disables the reduction.
func WithReducedDimensions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.reducedDims = n
		}
	}
}

// WithBlockBatchSize sets how many blocks are fetched per KV read during
// batched block loading.
func WithBlockBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.blockBatch = n
		}
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	kv    *KVStore
	nodes map[string]*node
	byCID map[string]string

	reducedDims int
	blockBatch  int

	cacheMu     sync.Mutex
	pathCache   map[string][]child
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		kv:         NewKVStore(),
		nodes:      make(map[string]*node),
		byCID:      make(map[string]string),
		blockBatch: defaultBlockBatchSize,
		pathCache:  make(map[string][]child),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// upsert returns the node for id, creating it when needed. Caller holds mu.
func (s *Store) upsert(id string) *node {
	n, ok := s.nodes[id]
	if !ok {
		n = &node{
			id:       id,
			idx:      uint32(len(s.nodes)),
			outTypes: make(map[string]struct{}),
			inTypes:  make(map[string]struct{}),
		}
		s.nodes[id] = n
	}
	return n
}

// AddNode inserts or replaces a plain node. Edges are kept on replace.
// A node without a vector takes part in traversal but not in search.
func (s *Store) AddNode(id string, vector []float32, kind string, props map[string]any) error {
	if id == "" {
		return fmt.Errorf("memgraph: node id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.upsert(id)
	s.dropCID(n)
	n.kind = kind
	n.props = maps.Clone(props)
	n.vector = slices.Clone(vector)
	s.invalidatePaths()
	return nil
}

// AddBlock inserts or replaces a content-addressed node and returns its
// CID. Identical vector and properties always produce the same CID.
func (s *Store) AddBlock(id string, vector []float32, kind string, props map[string]any) (string, error) {
	if id == "" {
		return "", fmt.Errorf("memgraph: node id is required")
	}
	block, err := encodeBlock(vector, props)
	if err != nil {
		return "", err
	}
	cid := computeCID(block)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.upsert(id)
	s.dropCID(n)
	s.kv.Set(blockKey(cid), block)
	n.kind = kind
	n.props = maps.Clone(props)
	n.vector = nil
	n.cid = cid
	if _, taken := s.byCID[cid]; !taken {
		s.byCID[cid] = id
	}
	s.invalidatePaths()
	return cid, nil
}

// dropCID unregisters the node's current CID. Caller holds mu.
func (s *Store) dropCID(n *node) {
	if n.cid == "" {
		return
	}
	if s.byCID[n.cid] == n.id {
		delete(s.byCID, n.cid)
		for _, other := range s.nodes {
			if other != n && other.cid == n.cid {
				s.byCID[n.cid] = other.id
				break
			}
		}
	}
	n.cid = ""
}

// ResolveCID returns the ID of a node whose block has the given CID.
func (s *Store) ResolveCID(cid string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCID[cid]
	return id, ok
}

// Block returns the decoded contents of the block with the given CID.
func (s *Store) Block(cid string) ([]float32, map[string]any, error) {
	raw, ok := s.kv.Get(blockKey(cid))
	if !ok {
		return nil, nil, fmt.Errorf("%w: block %s", errNotFound, cid)
	}
	return decodeBlock(raw)
}

// VectorSearch returns the k nodes most similar to vector by cosine
// similarity, best first.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, k int, opts graph.VectorSearchOptions) ([]graph.VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("memgraph: k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("memgraph: empty query vector")
	}
	f, err := parseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var plain, blocks []*node
	for _, n := range s.nodes {
		if opts.UseCIDBucketOptimization && n.cid == "" {
			continue
		}
		if !f.match(n) {
			continue
		}
		if n.cid != "" {
			blocks = append(blocks, n)
		} else if len(n.vector) > 0 {
			plain = append(plain, n)
		}
	}

	q := vector
	dims := len(vector)
	if opts.UseDimensionalityReduction && s.reducedDims > 0 && s.reducedDims < dims {
		q = vector[:s.reducedDims]
	}

	results := make([]graph.VectorResult, 0, len(plain)+len(blocks))
	score := func(n *node, v []float32) {
		if len(v) != dims {
			return
		}
		results = append(results, graph.VectorResult{
			ID:       n.id,
			Score:    cosine(q, v[:len(q)]),
			CID:      n.cid,
			Metadata: metadata(n),
		})
	}

	for i, n := range plain {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score(n, n.vector)
	}

	step := 1
	if opts.EnableBlockBatchLoading {
		step = s.blockBatch
	}
	for start := 0; start < len(blocks); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := blocks[start:min(start+step, len(blocks))]
		keys := make([]string, len(chunk))
		for i, n := range chunk {
			keys[i] = blockKey(n.cid)
		}
		for i, raw := range s.kv.GetMany(keys) {
			if raw == nil {
				continue
			}
			v, err := decodeBlockVector(raw)
			if err != nil {
				return nil, fmt.Errorf("memgraph: block %s: %w", chunk[i].cid, err)
			}
			score(chunk[i], v)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// EntityInfo describes id and its inbound and outbound edges.
func (s *Store) EntityInfo(ctx context.Context, id string) (graph.EntityInfo, error) {
	if err := ctx.Err(); err != nil {
		return graph.EntityInfo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return graph.EntityInfo{}, fmt.Errorf("%w: %s", errNotFound, id)
	}
	info := graph.EntityInfo{
		ID:         n.id,
		Type:       n.kind,
		CID:        n.cid,
		Properties: maps.Clone(n.props),
		Inbound:    []graph.Connection{},
		Outbound:   []graph.Connection{},
	}
	for _, rel := range sortedKeys(n.outTypes) {
		edges, err := s.readEdges(makeRelKey(id, rel))
		if err != nil {
			return graph.EntityInfo{}, err
		}
		for _, e := range edges {
			info.Outbound = append(info.Outbound, graph.Connection{ID: e.TargetID, Relationship: rel, Weight: e.Weight})
		}
	}
	for _, rel := range sortedKeys(n.inTypes) {
		edges, err := s.readEdges(makeRevKey(id, rel))
		if err != nil {
			return graph.EntityInfo{}, err
		}
		for _, e := range edges {
			info.Inbound = append(info.Inbound, graph.Connection{ID: e.TargetID, Relationship: rel, Weight: e.Weight})
		}
	}
	return info, nil
}

// children resolves the outgoing neighbors of n restricted to edgeTypes.
// Caller holds mu (read).
func (s *Store) children(n *node, edgeTypes []string, useCache bool) ([]child, error) {
	var key string
	if useCache {
		key = n.id + "\x00" + strings.Join(edgeTypes, "\x00")
		s.cacheMu.Lock()
		cached, ok := s.pathCache[key]
		s.cacheMu.Unlock()
		if ok {
			s.cacheHits.Add(1)
			return cached, nil
		}
		s.cacheMisses.Add(1)
	}

	rels := edgeTypes
	if len(rels) == 0 {
		rels = sortedKeys(n.outTypes)
	}
	var out []child
	for _, rel := range rels {
		if _, ok := n.outTypes[rel]; !ok {
			continue
		}
		edges, err := s.readEdges(makeRelKey(n.id, rel))
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			out = append(out, child{id: e.TargetID, rel: rel, weight: e.Weight})
		}
	}

	if useCache {
		s.cacheMu.Lock()
		s.pathCache[key] = out
		s.cacheMu.Unlock()
	}
	return out, nil
}

// invalidatePaths clears the path cache. Caller holds mu (write).
func (s *Store) invalidatePaths() {
	s.cacheMu.Lock()
	clear(s.pathCache)
	s.cacheMu.Unlock()
}

// PathCacheStats reports path cache hits and misses since creation.
func (s *Store) PathCacheStats() (hits, misses int64) {
	return s.cacheHits.Load(), s.cacheMisses.Load()
}

func metadata(n *node) map[string]any {
	if len(n.props) == 0 && n.kind == "" {
		return nil
	}
	m := maps.Clone(n.props)
	if m == nil {
		m = make(map[string]any, 1)
	}
	if n.kind != "" {
		m["type"] = n.kind
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(m))
}
