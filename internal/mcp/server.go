// Package mcp exposes the query optimizer as Model Context Protocol tools.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/kektorplan/pkg/embeddings"
	"github.com/sanonone/kektorplan/pkg/memgraph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer registers every tool on a new server. embedder may be nil,
// in which case tools need explicit vectors.
func NewMCPServer(opt *optimizer.UnifiedGraphRAGQueryOptimizer, store *memgraph.Store, embedder embeddings.Embedder) *mcp.Server {
	service := NewService(opt, store, embedder)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "kektorplan",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "plan_query",
		Description: "Show how a retrieval query would be executed: detected graph type, traversal strategy, candidate count and depth.",
	}, service.PlanQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "execute_query",
		Description: "Retrieve entities by semantic similarity, then expand through the knowledge graph under a resource budget.",
	}, service.ExecuteQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "add_entity",
		Description: "Add an entity to the graph, optionally as a content-addressed block.",
	}, service.AddEntity)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "connect_entities",
		Description: "Create a directed relationship between two entities.",
	}, service.Connect)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "describe_entity",
		Description: "Describe an entity and its incoming and outgoing relationships.",
	}, service.Describe)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "top_entities",
		Description: "List the most connected entities seen so far.",
	}, service.TopEntities)

	return s
}
