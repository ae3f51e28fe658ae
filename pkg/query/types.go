// Package query defines the retrieval request model of the optimizer and the
// pure transformations applied to it: graph-type detection and rewriting into
// a validated execution Plan.
//
// A Query is what a serving layer hands over (usually decoded from JSON).
// A Plan is what the optimizer executes. The Rewriter is the only code that
// produces Plans, so every Plan seen by an executor has already passed range
// and strategy validation.
package query

import "encoding/json"

// GraphType identifies the storage model of the underlying graph.
type GraphType string

const (
	// GraphGeneral is a plain property graph keyed by entity ID.
	GraphGeneral GraphType = "general"
	// GraphIPLD is a content-addressed DAG keyed by CID.
	GraphIPLD GraphType = "ipld"
)

// ParseGraphType validates s as a known graph type.
func ParseGraphType(s string) (GraphType, error) {
	switch GraphType(s) {
	case GraphGeneral, GraphIPLD:
		return GraphType(s), nil
	default:
		return "", invalid(KeyGraphType, s, "must be %q or %q", GraphGeneral, GraphIPLD)
	}
}

// Strategy names a traversal strategy understood by a Graph Processor.
type Strategy string

const (
	StrategyDefault      Strategy = "default"
	StrategyDAGTraversal Strategy = "dag_traversal"
)

// Reserved top-level keys of the dict form of a query.
const (
	KeyQueryID           = "query_id"
	KeyQueryVector       = "query_vector"
	KeyQueryText         = "query_text"
	KeyMaxVectorResults  = "max_vector_results"
	KeyMaxTraversalDepth = "max_traversal_depth"
	KeyEdgeTypes         = "edge_types"
	KeyGraphType         = "graph_type"
	KeyFilter            = "filter"
	KeyTraversal         = "traversal"
	KeyVectorParams      = "vector_params"
)

// Reserved keys inside the "traversal" object.
const (
	KeyStrategy               = "strategy"
	KeyMaxDepth               = "max_depth"
	KeyUseCIDPathOptimization = "use_cid_path_optimization"
	KeyEnablePathCaching      = "enable_path_caching"
	KeyBatchLoading           = "batch_loading"
	KeyBatchSize              = "batch_size"
	KeyVisitNodesOnce         = "visit_nodes_once"
)

// Reserved keys inside the "vector_params" object.
const (
	KeyTopK                       = "top_k"
	KeyUseDimensionalityReduction = "use_dimensionality_reduction"
	KeyUseCIDBucketOptimization   = "use_cid_bucket_optimization"
	KeyEnableBlockBatchLoading    = "enable_block_batch_loading"
)

// Query is an external retrieval request. It is treated as immutable: the
// Rewriter copies whatever it needs and never writes back.
//
// MaxVectorResults and MaxTraversalDepth are pointers so that an absent value
// (defaulted) can be told apart from an explicit one (validated).
type Query struct {
	QueryID           string
	QueryVector       []float32
	QueryText         string
	MaxVectorResults  *int
	MaxTraversalDepth *int
	EdgeTypes         []string
	GraphType         GraphType
	Filter            string

	// Traversal and VectorParams hold the caller's raw hint objects.
	Traversal    map[string]any
	VectorParams map[string]any

	// Extra carries unknown keys through to the plan unchanged.
	Extra map[string]any
}

// Int returns a pointer to v, for building queries in code.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// BoolValue dereferences p, treating nil as false.
func BoolValue(p *bool) bool { return p != nil && *p }

// IntValue dereferences p, treating nil as 0.
func IntValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// HasVector reports whether the query requests vector search.
func (q Query) HasVector() bool { return len(q.QueryVector) > 0 }

// ToMap renders the query in its dict form.
func (q Query) ToMap() map[string]any {
	m := make(map[string]any, len(q.Extra)+10)
	for k, v := range q.Extra {
		m[k] = v
	}
	if q.QueryID != "" {
		m[KeyQueryID] = q.QueryID
	}
	if len(q.QueryVector) > 0 {
		m[KeyQueryVector] = q.QueryVector
	}
	if q.QueryText != "" {
		m[KeyQueryText] = q.QueryText
	}
	if q.MaxVectorResults != nil {
		m[KeyMaxVectorResults] = *q.MaxVectorResults
	}
	if q.MaxTraversalDepth != nil {
		m[KeyMaxTraversalDepth] = *q.MaxTraversalDepth
	}
	if len(q.EdgeTypes) > 0 {
		m[KeyEdgeTypes] = q.EdgeTypes
	}
	if q.GraphType != "" {
		m[KeyGraphType] = string(q.GraphType)
	}
	if q.Filter != "" {
		m[KeyFilter] = q.Filter
	}
	if q.Traversal != nil {
		m[KeyTraversal] = q.Traversal
	}
	if q.VectorParams != nil {
		m[KeyVectorParams] = q.VectorParams
	}
	return m
}

// MarshalJSON flattens Extra into the top-level object.
func (q Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.ToMap())
}

// UnmarshalJSON decodes the dict form through FromMap, so the same
// validation applies to JSON and to in-process maps.
func (q *Query) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return invalid("query", nil, "malformed JSON: %v", err)
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
