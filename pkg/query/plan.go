package query

import "encoding/json"

// TraversalParams configures graph expansion. The pointer fields are only
// meaningful for StrategyDAGTraversal and are nil (absent) in general-graph
// plans, so a general Graph Processor never sees CID semantics.
type TraversalParams struct {
	Strategy  Strategy `json:"strategy"`
	MaxDepth  int      `json:"max_depth"`
	EdgeTypes []string `json:"edge_types,omitempty"`

	UseCIDPathOptimization *bool `json:"use_cid_path_optimization,omitempty"`
	EnablePathCaching      *bool `json:"enable_path_caching,omitempty"`
	BatchLoading           *bool `json:"batch_loading,omitempty"`
	BatchSize              *int  `json:"batch_size,omitempty"`
	VisitNodesOnce         *bool `json:"visit_nodes_once,omitempty"`

	Extra map[string]any `json:"-"`
}

// VectorParams configures the seed vector search.
type VectorParams struct {
	// TopK is the vector candidate count requested from the processor.
	TopK int `json:"top_k"`

	UseDimensionalityReduction *bool `json:"use_dimensionality_reduction,omitempty"`
	UseCIDBucketOptimization   *bool `json:"use_cid_bucket_optimization,omitempty"`
	EnableBlockBatchLoading    *bool `json:"enable_block_batch_loading,omitempty"`

	Extra map[string]any `json:"-"`
}

// RewrittenQuery is the normalized query inside a Plan.
type RewrittenQuery struct {
	QueryID           string          `json:"query_id,omitempty"`
	QueryVector       []float32       `json:"query_vector,omitempty"`
	QueryText         string          `json:"query_text,omitempty"`
	MaxVectorResults  int             `json:"max_vector_results"`
	MaxTraversalDepth int             `json:"max_traversal_depth"`
	EdgeTypes         []string        `json:"edge_types,omitempty"`
	Filter            string          `json:"filter,omitempty"`
	Traversal         TraversalParams `json:"traversal"`
	VectorParams      VectorParams    `json:"vector_params"`

	Extra map[string]any `json:"-"`
}

// Plan is the executable form of a Query for one graph type.
type Plan struct {
	GraphType GraphType      `json:"graph_type"`
	Query     RewrittenQuery `json:"query"`
}

// Strategy is shorthand for p.Query.Traversal.Strategy.
func (p Plan) Strategy() Strategy { return p.Query.Traversal.Strategy }

func (t TraversalParams) MarshalJSON() ([]byte, error) {
	type plain TraversalParams
	return marshalFlat(plain(t), t.Extra)
}

func (v VectorParams) MarshalJSON() ([]byte, error) {
	type plain VectorParams
	return marshalFlat(plain(v), v.Extra)
}

func (q RewrittenQuery) MarshalJSON() ([]byte, error) {
	type plain RewrittenQuery
	return marshalFlat(plain(q), q.Extra)
}

// marshalFlat encodes v and merges extra keys into the resulting object.
// Declared fields take precedence over extra keys of the same name.
func marshalFlat(v any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(fields)+len(extra))
	for k, val := range extra {
		merged[k] = val
	}
	for k, val := range fields {
		merged[k] = val
	}
	return json.Marshal(merged)
}
