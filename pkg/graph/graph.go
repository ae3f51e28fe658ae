// Package graph defines the contract between the optimizer and the stores
// that actually hold vectors and edges.
//
// Capabilities are split into small interfaces. Every store implements
// Processor; stores that can walk a property graph implement
// GeneralProcessor, and stores that can walk a content-addressed DAG
// implement DAGProcessor. The optimizer checks which one it needs before it
// issues any call.
package graph

import (
	"context"
	"errors"
)

// ErrEntityNotFound is returned by EntityInfo for unknown IDs.
var ErrEntityNotFound = errors.New("entity not found")

// ErrInvalidFilter is returned by VectorSearch for a filter expression the
// store cannot parse.
var ErrInvalidFilter = errors.New("invalid filter")

// VectorSearchOptions are the hints the optimizer passes with a search.
// Stores may ignore hints they cannot use.
type VectorSearchOptions struct {
	Filter                     string
	UseDimensionalityReduction bool
	UseCIDBucketOptimization   bool
	EnableBlockBatchLoading    bool
}

// VectorResult is one vector-search candidate.
type VectorResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	CID      string         `json:"cid,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is an entity returned by an execution: a seed from vector search
// or a node discovered by traversal.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	// Relationship and Source describe the edge the node was reached
	// through; both are empty for seeds.
	Relationship string `json:"relationship,omitempty"`
	Source       string `json:"source,omitempty"`
	Depth        int    `json:"depth"`
	CID          string `json:"cid,omitempty"`
	// DAGBatch is set on DAG traversal results. Seeds are batch 0.
	DAGBatch   *int           `json:"dag_batch,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Seed       bool           `json:"seed,omitempty"`
	Importance float64        `json:"importance,omitempty"`
}

// Connection is one edge as seen from an entity.
type Connection struct {
	ID           string  `json:"id"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight"`
}

// EntityInfo describes an entity and its neighborhood.
type EntityInfo struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	CID        string         `json:"cid,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Inbound    []Connection   `json:"inbound_connections"`
	Outbound   []Connection   `json:"outbound_connections"`
}

// ExpandOptions control a property-graph expansion.
type ExpandOptions struct {
	MaxDepth int
	// EdgeTypes restricts the relationships followed; empty follows all.
	EdgeTypes []string
}

// DAGOptions control a DAG traversal.
type DAGOptions struct {
	MaxDepth               int
	EdgeTypes              []string
	UseCIDPathOptimization bool
	EnablePathCaching      bool
	BatchLoading           bool
	BatchSize              int
	VisitNodesOnce         bool
}

// BatchFunc receives expansion results as they are produced. Returning
// false stops the traversal; the expand call then returns nil.
type BatchFunc func(batch []Result) bool

// Processor is the capability every store provides.
type Processor interface {
	VectorSearch(ctx context.Context, vector []float32, k int, opts VectorSearchOptions) ([]VectorResult, error)
	EntityInfo(ctx context.Context, id string) (EntityInfo, error)
}

// GeneralProcessor expands seeds across a property graph. Results must not
// include the seeds themselves.
type GeneralProcessor interface {
	Processor
	Expand(ctx context.Context, seeds []Result, opts ExpandOptions, fn BatchFunc) error
}

// DAGProcessor expands seeds across a content-addressed DAG. Results carry
// CID and DAGBatch; the first expansion batch is 1.
type DAGProcessor interface {
	Processor
	ExpandByDAGTraversal(ctx context.Context, seeds []Result, opts DAGOptions, fn BatchFunc) error
}

// Batch returns a pointer to n, for Result.DAGBatch.
func Batch(n int) *int { return &n }
