package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/memgraph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
)

const testGraph = `
nodes:
  - {id: alice, type: author, vector: [1, 0, 0]}
  - {id: p1, type: paper, vector: [1, 0, 0], content_addressed: true}
  - {id: p2, type: paper, vector: [0.7, 0.7, 0], content_addressed: true}
  - {id: p3, type: paper, vector: [0, 1, 0], content_addressed: true}
links:
  - {source: alice, target: p1, relation: wrote}
  - {source: p1, target: p2, relation: cites}
  - {source: p2, target: p3, relation: cites}
`

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func newTestService(t *testing.T, emb *fixedEmbedder) (*Service, *memgraph.Store) {
	t.Helper()
	store := memgraph.New()
	_, err := store.Load(strings.NewReader(testGraph))
	require.NoError(t, err)

	opt, err := optimizer.New(optimizer.GraphInfo{})
	require.NoError(t, err)

	if emb == nil {
		return NewService(opt, store, nil), store
	}
	return NewService(opt, store, *emb), store
}

func TestPlanQuery(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	_, plan, err := s.PlanQuery(ctx, nil, QueryArgs{Vector: []float32{1, 0, 0}, GraphType: "ipld", MaxResults: 5, Depth: 3})
	require.NoError(t, err)
	assert.Equal(t, "ipld", plan.GraphType)
	assert.Equal(t, "dag_traversal", plan.Strategy)
	assert.Equal(t, 100, plan.BatchSize)
	assert.Contains(t, plan.Summary, "strategy dag_traversal")

	_, plan, err = s.PlanQuery(ctx, nil, QueryArgs{Vector: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, "general", plan.GraphType)
	assert.Zero(t, plan.BatchSize)

	_, _, err = s.PlanQuery(ctx, nil, QueryArgs{GraphType: "hypergraph"})
	assert.ErrorIs(t, err, optimizer.ErrInvalidParameter)
}

func TestExecuteQuery(t *testing.T) {
	s, _ := newTestService(t, nil)

	_, res, err := s.ExecuteQuery(context.Background(), nil, QueryArgs{
		Vector:     []float32{1, 0, 0},
		GraphType:  "ipld",
		MaxResults: 1,
		Depth:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, string(optimizer.StateCompleted), res.State)
	assert.NotEmpty(t, res.QueryID)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "p1", res.Results[0].ID)
	assert.True(t, res.Results[0].Seed)
	assert.Equal(t, "p2", res.Results[1].ID)
	assert.Equal(t, "cites", res.Results[1].Relationship)
	assert.Equal(t, 3, res.NodesVisited)
	assert.False(t, res.BudgetExhausted)
	assert.Contains(t, res.Summary, "p2 <-[cites]- p1")
}

func TestQueryTextIsEmbedded(t *testing.T) {
	s, _ := newTestService(t, &fixedEmbedder{vec: []float32{0, 1, 0}})

	_, res, err := s.ExecuteQuery(context.Background(), nil, QueryArgs{Text: "dags", MaxResults: 1, Depth: 1})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "p3", res.Results[0].ID)

	failing, _ := newTestService(t, &fixedEmbedder{err: errors.New("model offline")})
	_, _, err = failing.ExecuteQuery(context.Background(), nil, QueryArgs{Text: "dags"})
	assert.ErrorContains(t, err, "model offline")

	bare, _ := newTestService(t, nil)
	_, _, err = bare.ExecuteQuery(context.Background(), nil, QueryArgs{Text: "dags"})
	assert.ErrorIs(t, err, errNoEmbedder)
}

func TestAddConnectDescribe(t *testing.T) {
	s, store := newTestService(t, &fixedEmbedder{vec: []float32{0, 0, 1}})
	ctx := context.Background()

	_, added, err := s.AddEntity(ctx, nil, AddEntityArgs{EntityID: "p4", Type: "paper", Text: "merkle dags", ContentAddressed: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(added.CID, "bafyrei"))
	assert.Equal(t, 5, store.Len())

	_, _, err = s.AddEntity(ctx, nil, AddEntityArgs{})
	assert.Error(t, err)

	_, conn, err := s.Connect(ctx, nil, ConnectArgs{SourceID: "p3", TargetID: "p4", Relation: "cites"})
	require.NoError(t, err)
	assert.Equal(t, "connected", conn.Status)

	_, _, err = s.Connect(ctx, nil, ConnectArgs{SourceID: "p3", TargetID: "ghost", Relation: "cites"})
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)

	_, desc, err := s.Describe(ctx, nil, DescribeArgs{EntityID: "p4"})
	require.NoError(t, err)
	assert.Contains(t, desc.Description, "p4 [paper] cid="+added.CID)
	assert.Contains(t, desc.Description, "<-[cites]- p3")

	_, desc, err = s.Describe(ctx, nil, DescribeArgs{EntityID: "alice"})
	require.NoError(t, err)
	assert.Contains(t, desc.Description, "-[wrote]-> p1")

	_, _, err = s.Describe(ctx, nil, DescribeArgs{EntityID: "ghost"})
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)
}

func TestTopEntities(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	_, top, err := s.TopEntities(ctx, nil, TopEntitiesArgs{})
	require.NoError(t, err)
	assert.Empty(t, top.Entities)

	_, _, err = s.ExecuteQuery(ctx, nil, QueryArgs{Vector: []float32{1, 0, 0}, MaxResults: 2, Depth: 1})
	require.NoError(t, err)

	_, top, err = s.TopEntities(ctx, nil, TopEntitiesArgs{Limit: 1})
	require.NoError(t, err)
	require.Len(t, top.Entities, 1)
	assert.Regexp(t, `^\S+ \(\d\.\d{3}\)$`, top.Entities[0])
}

func connectClient(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store := memgraph.New()
	_, err := store.Load(strings.NewReader(testGraph))
	require.NoError(t, err)
	opt, err := optimizer.New(optimizer.GraphInfo{})
	require.NoError(t, err)

	st, ct := mcp.NewInMemoryTransports()
	ss, err := NewMCPServer(opt, store, nil).Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestMCPRoundTrip(t *testing.T) {
	cs := connectClient(t)
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"plan_query", "execute_query", "add_entity", "connect_entities", "describe_entity", "top_entities",
	}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "execute_query",
		Arguments: map[string]any{
			"vector":      []float32{1, 0, 0},
			"graph_type":  "ipld",
			"max_results": 1,
			"depth":       2,
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out ExecuteResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "completed", out.State)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "p1", out.Results[0].ID)
}

func TestMCPToolErrorIsReported(t *testing.T) {
	cs := connectClient(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "describe_entity",
		Arguments: map[string]any{"entity_id": "ghost"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "ghost")
}
