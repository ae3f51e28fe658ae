package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/kektorplan/pkg/embeddings"
	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/memgraph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
	"github.com/sanonone/kektorplan/pkg/query"
)

var errNoEmbedder = errors.New("no embedder configured: pass a vector")

type Service struct {
	optimizer *optimizer.UnifiedGraphRAGQueryOptimizer
	store     *memgraph.Store
	embedder  embeddings.Embedder
}

func NewService(opt *optimizer.UnifiedGraphRAGQueryOptimizer, store *memgraph.Store, emb embeddings.Embedder) *Service {
	return &Service{
		optimizer: opt,
		store:     store,
		embedder:  emb,
	}
}

// --- Tool Handlers ---

func (s *Service) PlanQuery(ctx context.Context, req *mcp.CallToolRequest, args QueryArgs) (*mcp.CallToolResult, PlanResult, error) {
	q, err := s.buildQuery(ctx, args)
	if err != nil {
		return nil, PlanResult{}, err
	}
	plan, err := s.optimizer.OptimizeQuery(ctx, q)
	if err != nil {
		return nil, PlanResult{}, err
	}

	t := plan.Query.Traversal
	res := PlanResult{
		GraphType: string(plan.GraphType),
		Strategy:  string(t.Strategy),
		TopK:      plan.Query.VectorParams.TopK,
		MaxDepth:  t.MaxDepth,
		BatchSize: query.IntValue(t.BatchSize),
	}
	res.Summary = fmt.Sprintf("%s graph, strategy %s: fetch %d candidates, keep %d seeds, expand up to depth %d",
		res.GraphType, res.Strategy, res.TopK, plan.Query.MaxVectorResults, res.MaxDepth)
	return nil, res, nil
}

func (s *Service) ExecuteQuery(ctx context.Context, req *mcp.CallToolRequest, args QueryArgs) (*mcp.CallToolResult, ExecuteResult, error) {
	q, err := s.buildQuery(ctx, args)
	if err != nil {
		return nil, ExecuteResult{}, err
	}
	results, info, err := s.optimizer.ExecuteQuery(ctx, s.store, q)
	if err != nil {
		return nil, ExecuteResult{}, err
	}

	res := ExecuteResult{
		QueryID:         info.QueryID,
		State:           string(info.State),
		Results:         make([]ResultItem, 0, len(results)),
		NodesVisited:    info.Consumption.NodesVisited,
		BudgetExhausted: info.Consumption.Exhausted,
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d results (%s)", len(results), info.State)
	for _, r := range results {
		res.Results = append(res.Results, ResultItem{
			ID:           r.ID,
			Score:        r.Score,
			Depth:        r.Depth,
			Relationship: r.Relationship,
			Source:       r.Source,
			CID:          r.CID,
			Seed:         r.Seed,
			Importance:   r.Importance,
		})
		if r.Seed {
			fmt.Fprintf(&b, "\n- %s (match %.3f)", r.ID, r.Score)
		} else {
			fmt.Fprintf(&b, "\n- %s <-[%s]- %s (depth %d)", r.ID, r.Relationship, r.Source, r.Depth)
		}
	}
	res.Summary = b.String()
	return nil, res, nil
}

func (s *Service) AddEntity(ctx context.Context, req *mcp.CallToolRequest, args AddEntityArgs) (*mcp.CallToolResult, AddEntityResult, error) {
	if args.EntityID == "" {
		return nil, AddEntityResult{}, errors.New("entity_id is required")
	}
	vec := args.Vector
	if len(vec) == 0 && args.Text != "" {
		var err error
		if vec, err = s.embed(ctx, args.Text); err != nil {
			return nil, AddEntityResult{}, err
		}
	}

	props := args.Properties
	if args.Text != "" {
		if props == nil {
			props = map[string]any{}
		}
		props["content"] = args.Text
	}

	res := AddEntityResult{EntityID: args.EntityID}
	var err error
	if args.ContentAddressed {
		res.CID, err = s.store.AddBlock(args.EntityID, vec, args.Type, props)
	} else {
		err = s.store.AddNode(args.EntityID, vec, args.Type, props)
	}
	if err != nil {
		return nil, AddEntityResult{}, err
	}
	return nil, res, nil
}

func (s *Service) Connect(ctx context.Context, req *mcp.CallToolRequest, args ConnectArgs) (*mcp.CallToolResult, ConnectResult, error) {
	if err := s.store.Link(args.SourceID, args.TargetID, args.Relation, args.Weight); err != nil {
		return nil, ConnectResult{}, err
	}
	return nil, ConnectResult{Status: "connected"}, nil
}

func (s *Service) Describe(ctx context.Context, req *mcp.CallToolRequest, args DescribeArgs) (*mcp.CallToolResult, DescribeResult, error) {
	info, err := s.store.EntityInfo(ctx, args.EntityID)
	if err != nil {
		return nil, DescribeResult{}, err
	}
	return nil, DescribeResult{Description: describe(info)}, nil
}

func (s *Service) TopEntities(ctx context.Context, req *mcp.CallToolRequest, args TopEntitiesArgs) (*mcp.CallToolResult, TopEntitiesResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	top, err := s.optimizer.TopEntities(ctx, limit)
	if err != nil {
		return nil, TopEntitiesResult{}, err
	}
	res := TopEntitiesResult{Entities: make([]string, 0, len(top))}
	for _, e := range top {
		res.Entities = append(res.Entities, fmt.Sprintf("%s (%.3f)", e.ID, e.Score))
	}
	return nil, res, nil
}

// --- Helpers ---

func (s *Service) buildQuery(ctx context.Context, args QueryArgs) (query.Query, error) {
	q := query.Query{
		QueryText:   args.Text,
		QueryVector: args.Vector,
		EdgeTypes:   args.EdgeTypes,
		Filter:      args.Filter,
	}
	if args.MaxResults > 0 {
		q.MaxVectorResults = query.Int(args.MaxResults)
	}
	if args.Depth > 0 {
		q.MaxTraversalDepth = query.Int(args.Depth)
	}
	if args.GraphType != "" {
		gt, err := query.ParseGraphType(args.GraphType)
		if err != nil {
			return q, err
		}
		q.GraphType = gt
	}
	if len(q.QueryVector) == 0 && q.QueryText != "" {
		vec, err := s.embed(ctx, q.QueryText)
		if err != nil {
			return q, err
		}
		q.QueryVector = vec
	}
	return q, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, errNoEmbedder
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding error: %w", err)
	}
	return vec, nil
}

// describe renders an entity's neighborhood for the LLM.
func describe(info graph.EntityInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", info.ID)
	if info.Type != "" {
		fmt.Fprintf(&b, " [%s]", info.Type)
	}
	if info.CID != "" {
		fmt.Fprintf(&b, " cid=%s", info.CID)
	}
	for _, c := range info.Outbound {
		fmt.Fprintf(&b, "\n  -[%s]-> %s", c.Relationship, c.ID)
	}
	for _, c := range info.Inbound {
		fmt.Fprintf(&b, "\n  <-[%s]- %s", c.Relationship, c.ID)
	}
	if len(info.Outbound)+len(info.Inbound) == 0 {
		b.WriteString("\n  (no connections)")
	}
	return b.String()
}
