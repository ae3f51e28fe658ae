package query

import "math"

// RewriteConfig holds the defaults and hard bounds applied by the Rewriter.
type RewriteConfig struct {
	DefaultMaxVectorResults  int `yaml:"default_max_vector_results" validate:"gte=1"`
	DefaultMaxTraversalDepth int `yaml:"default_max_traversal_depth" validate:"gte=1"`
	DefaultBatchSize         int `yaml:"default_batch_size" validate:"gte=1"`

	MaxVectorResults    int `yaml:"max_vector_results" validate:"gte=1,gtefield=DefaultMaxVectorResults"`
	MaxTraversalDepth   int `yaml:"max_traversal_depth" validate:"gte=1,gtefield=DefaultMaxTraversalDepth"`
	MaxBatchSize        int `yaml:"max_batch_size" validate:"gte=1,gtefield=DefaultBatchSize"`
	MaxVectorCandidates int `yaml:"max_vector_candidates" validate:"gte=1,gtefield=MaxVectorResults"`
}

// DefaultRewriteConfig returns the bounds used when no configuration is given.
func DefaultRewriteConfig() RewriteConfig {
	return RewriteConfig{
		DefaultMaxVectorResults:  5,
		DefaultMaxTraversalDepth: 2,
		DefaultBatchSize:         100,
		MaxVectorResults:         1000,
		MaxTraversalDepth:        10,
		MaxBatchSize:             10000,
		MaxVectorCandidates:      10000,
	}
}

// Advisor supplies heuristic values for plan fields the caller left unset.
// The Rewriter clamps whatever it returns, so an Advisor cannot push a plan
// out of bounds.
type Advisor interface {
	// VectorCandidateCount suggests how many vector candidates to fetch for
	// maxVectorResults final seeds.
	VectorCandidateCount(maxVectorResults int) int
	// TraversalDepth suggests an effective depth no greater than requested.
	TraversalDepth(requested int, edgeTypes []string) int
}

// Rewriter turns a Query into a validated Plan. It is stateless apart from
// its configuration and safe for concurrent use.
type Rewriter struct {
	cfg RewriteConfig
}

// NewRewriter creates a Rewriter. Zero fields in cfg fall back to
// DefaultRewriteConfig.
func NewRewriter(cfg RewriteConfig) *Rewriter {
	def := DefaultRewriteConfig()
	if cfg.DefaultMaxVectorResults <= 0 {
		cfg.DefaultMaxVectorResults = def.DefaultMaxVectorResults
	}
	if cfg.DefaultMaxTraversalDepth <= 0 {
		cfg.DefaultMaxTraversalDepth = def.DefaultMaxTraversalDepth
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = def.DefaultBatchSize
	}
	if cfg.MaxVectorResults <= 0 {
		cfg.MaxVectorResults = def.MaxVectorResults
	}
	if cfg.MaxTraversalDepth <= 0 {
		cfg.MaxTraversalDepth = def.MaxTraversalDepth
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxVectorCandidates <= 0 {
		cfg.MaxVectorCandidates = def.MaxVectorCandidates
	}
	return &Rewriter{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Rewriter) Config() RewriteConfig { return r.cfg }

// Rewrite normalizes q for graph type gt without heuristics: the traversal
// depth equals max_traversal_depth and top_k equals max_vector_results unless
// set explicitly.
func (r *Rewriter) Rewrite(q Query, gt GraphType) (Plan, error) {
	return r.RewriteWithAdvisor(q, gt, nil)
}

// RewriteWithAdvisor normalizes q for graph type gt. Fields the caller did
// not set are filled from a, which may be nil. Explicit caller values always
// win over the advisor.
func (r *Rewriter) RewriteWithAdvisor(q Query, gt GraphType, a Advisor) (Plan, error) {
	if _, err := ParseGraphType(string(gt)); err != nil {
		return Plan{}, err
	}

	// --- Reserved top-level fields ---

	maxResults, err := r.positive(KeyMaxVectorResults, q.MaxVectorResults, r.cfg.DefaultMaxVectorResults, r.cfg.MaxVectorResults)
	if err != nil {
		return Plan{}, err
	}
	maxDepth, err := r.positive(KeyMaxTraversalDepth, q.MaxTraversalDepth, r.cfg.DefaultMaxTraversalDepth, r.cfg.MaxTraversalDepth)
	if err != nil {
		return Plan{}, err
	}
	for i, f := range q.QueryVector {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return Plan{}, invalid(KeyQueryVector, i, "component is not finite")
		}
	}

	rq := RewrittenQuery{
		QueryID:           q.QueryID,
		QueryVector:       append([]float32(nil), q.QueryVector...),
		QueryText:         q.QueryText,
		MaxVectorResults:  maxResults,
		MaxTraversalDepth: maxDepth,
		EdgeTypes:         append([]string(nil), q.EdgeTypes...),
		Filter:            q.Filter,
		Extra:             copyMap(q.Extra),
	}

	// --- Traversal ---

	trav, err := r.rewriteTraversal(q, gt, maxDepth, a)
	if err != nil {
		return Plan{}, err
	}
	rq.Traversal = trav

	// --- Vector search ---

	vec, err := r.rewriteVectorParams(q, gt, maxResults, a)
	if err != nil {
		return Plan{}, err
	}
	rq.VectorParams = vec

	return Plan{GraphType: gt, Query: rq}, nil
}

func (r *Rewriter) rewriteTraversal(q Query, gt GraphType, maxDepth int, a Advisor) (TraversalParams, error) {
	raw := copyMap(q.Traversal)
	if raw == nil {
		raw = map[string]any{}
	}
	t := TraversalParams{EdgeTypes: append([]string(nil), q.EdgeTypes...)}

	// Strategy
	t.Strategy = StrategyDefault
	if v, ok := raw[KeyStrategy]; ok {
		s, err := asString(KeyTraversal+"."+KeyStrategy, v)
		if err != nil {
			return t, err
		}
		switch Strategy(s) {
		case StrategyDefault, "":
		case StrategyDAGTraversal:
			if gt != GraphIPLD {
				return t, invalid(KeyTraversal+"."+KeyStrategy, s, "requires graph_type %q", GraphIPLD)
			}
		default:
			return t, invalid(KeyTraversal+"."+KeyStrategy, s, "unknown strategy")
		}
		delete(raw, KeyStrategy)
	}

	// Depth: explicit traversal.max_depth wins, otherwise ask the advisor.
	if v, ok := raw[KeyMaxDepth]; ok {
		d, err := asInt(KeyTraversal+"."+KeyMaxDepth, v)
		if err != nil {
			return t, err
		}
		if d <= 0 || d > r.cfg.MaxTraversalDepth {
			return t, invalid(KeyTraversal+"."+KeyMaxDepth, d, "must be in [1, %d]", r.cfg.MaxTraversalDepth)
		}
		t.MaxDepth = d
		delete(raw, KeyMaxDepth)
	} else {
		t.MaxDepth = maxDepth
		if a != nil {
			t.MaxDepth = clampInt(a.TraversalDepth(maxDepth, t.EdgeTypes), 1, maxDepth)
		}
	}

	// DAG-only keys are consumed here so they never leak into Extra.
	dagKeys := []string{KeyUseCIDPathOptimization, KeyEnablePathCaching, KeyBatchLoading, KeyBatchSize, KeyVisitNodesOnce}
	if gt != GraphIPLD {
		for _, k := range dagKeys {
			delete(raw, k)
		}
		t.Extra = nonEmpty(raw)
		return t, nil
	}

	t.Strategy = StrategyDAGTraversal
	t.UseCIDPathOptimization = Bool(true)
	t.EnablePathCaching = Bool(true)
	delete(raw, KeyUseCIDPathOptimization)
	delete(raw, KeyEnablePathCaching)

	batchLoading, err := r.optionalBool(raw, KeyBatchLoading, true)
	if err != nil {
		return t, err
	}
	visitOnce, err := r.optionalBool(raw, KeyVisitNodesOnce, true)
	if err != nil {
		return t, err
	}
	batchSize := r.cfg.DefaultBatchSize
	if v, ok := raw[KeyBatchSize]; ok {
		bs, err := asInt(KeyTraversal+"."+KeyBatchSize, v)
		if err != nil {
			return t, err
		}
		if bs <= 0 || bs > r.cfg.MaxBatchSize {
			return t, invalid(KeyTraversal+"."+KeyBatchSize, bs, "must be in [1, %d]", r.cfg.MaxBatchSize)
		}
		batchSize = bs
		delete(raw, KeyBatchSize)
	}
	t.BatchLoading = Bool(batchLoading)
	t.VisitNodesOnce = Bool(visitOnce)
	t.BatchSize = Int(batchSize)
	t.Extra = nonEmpty(raw)
	return t, nil
}

func (r *Rewriter) rewriteVectorParams(q Query, gt GraphType, maxResults int, a Advisor) (VectorParams, error) {
	raw := copyMap(q.VectorParams)
	if raw == nil {
		raw = map[string]any{}
	}
	var v VectorParams

	if val, ok := raw[KeyTopK]; ok {
		k, err := asInt(KeyVectorParams+"."+KeyTopK, val)
		if err != nil {
			return v, err
		}
		if k <= 0 || k > r.cfg.MaxVectorCandidates {
			return v, invalid(KeyVectorParams+"."+KeyTopK, k, "must be in [1, %d]", r.cfg.MaxVectorCandidates)
		}
		v.TopK = k
		delete(raw, KeyTopK)
	} else {
		v.TopK = maxResults
		if a != nil {
			v.TopK = clampInt(a.VectorCandidateCount(maxResults), maxResults, r.cfg.MaxVectorCandidates)
		}
	}

	// Flags a caller may set on any graph.
	for _, key := range []string{KeyUseDimensionalityReduction, KeyUseCIDBucketOptimization, KeyEnableBlockBatchLoading} {
		val, ok := raw[key]
		if !ok {
			continue
		}
		b, err := asBool(KeyVectorParams+"."+key, val)
		if err != nil {
			return v, err
		}
		delete(raw, key)
		switch key {
		case KeyUseDimensionalityReduction:
			v.UseDimensionalityReduction = Bool(b)
		case KeyUseCIDBucketOptimization:
			if gt == GraphIPLD {
				v.UseCIDBucketOptimization = Bool(b)
			}
		case KeyEnableBlockBatchLoading:
			if gt == GraphIPLD {
				v.EnableBlockBatchLoading = Bool(b)
			}
		}
	}

	if gt == GraphIPLD && q.HasVector() {
		v.UseDimensionalityReduction = Bool(true)
		v.UseCIDBucketOptimization = Bool(true)
		v.EnableBlockBatchLoading = Bool(true)
	}
	v.Extra = nonEmpty(raw)
	return v, nil
}

// positive resolves an optional positive integer against its default and
// upper bound.
func (r *Rewriter) positive(key string, p *int, def, max int) (int, error) {
	if p == nil {
		return def, nil
	}
	if *p <= 0 {
		return 0, invalid(key, *p, "must be a positive integer")
	}
	if *p > max {
		return 0, invalid(key, *p, "exceeds configured maximum %d", max)
	}
	return *p, nil
}

func (r *Rewriter) optionalBool(raw map[string]any, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	delete(raw, key)
	return asBool(KeyTraversal+"."+key, v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}
