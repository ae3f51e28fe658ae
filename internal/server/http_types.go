package server

import (
	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
	"github.com/sanonone/kektorplan/pkg/stats"
)

// --- Requests ---

// NodeRequest adds or replaces a node.
type NodeRequest struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Vector     []float32      `json:"vector,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	// ContentAddressed stores the node as a block with a CID.
	ContentAddressed bool `json:"content_addressed,omitempty"`
}

// LinkRequest creates (POST) or removes (DELETE) a directed edge.
type LinkRequest struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight,omitempty"`
}

// --- Responses ---

// NodeResponse echoes the node ID and, for blocks, the assigned CID.
type NodeResponse struct {
	ID  string `json:"id"`
	CID string `json:"cid,omitempty"`
}

// UnlinkResponse reports whether the edge existed.
type UnlinkResponse struct {
	Removed bool `json:"removed"`
}

// ExecuteResponse is the body of POST /query/execute.
type ExecuteResponse struct {
	Results   []graph.Result          `json:"results"`
	Execution optimizer.ExecutionInfo `json:"execution"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Queries          stats.Snapshot   `json:"queries"`
	EdgeObservations map[string]int64 `json:"edge_observations"`
	GraphNodes       int              `json:"graph_nodes"`
}

// TopEntitiesResponse is the body of GET /entities/top.
type TopEntitiesResponse struct {
	Entities []stats.EntityScore `json:"entities"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Nodes  int    `json:"nodes"`
}
