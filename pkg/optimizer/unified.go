package optimizer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sanonone/kektorplan/pkg/budget"
	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/metrics"
	"github.com/sanonone/kektorplan/pkg/query"
	"github.com/sanonone/kektorplan/pkg/stats"
)

// State is the lifecycle position of one execution.
type State string

const (
	StateReceived        State = "received"
	StateRewritten       State = "rewritten"
	StateBudgeted        State = "budgeted"
	StateExecuting       State = "executing"
	StateCompleted       State = "completed"
	StateBudgetExhausted State = "budget_exhausted"
	StateFailed          State = "failed"
)

// ExecutionInfo is the telemetry returned with every execution. Plan and
// Consumption are always populated once the query has been rewritten.
type ExecutionInfo struct {
	QueryID     string             `json:"query_id"`
	GraphType   query.GraphType    `json:"graph_type"`
	Plan        query.Plan         `json:"plan"`
	State       State              `json:"state"`
	Consumption budget.Consumption `json:"consumption"`
	Limits      budget.Limits      `json:"limits"`
	// Batches counts expansion batches accepted from the processor.
	Batches        int            `json:"batches"`
	SeedCount      int            `json:"seed_count"`
	EdgesTraversed map[string]int `json:"edges_traversed,omitempty"`
	// Importance lookups made while scoring seeds.
	ImportanceCacheHits   int `json:"importance_cache_hits"`
	ImportanceCacheMisses int `json:"importance_cache_misses"`
}

// UnifiedGraphRAGQueryOptimizer is the entry point for planning and
// executing queries against either a general property graph or a
// content-addressed DAG. It is safe for concurrent use; each execution
// owns its own Budget.
type UnifiedGraphRAGQueryOptimizer struct {
	*GraphRAGQueryOptimizer
	budgets *budget.Manager
}

// New creates the façade. info is validated and copied.
func New(info GraphInfo, opts ...Option) (*UnifiedGraphRAGQueryOptimizer, error) {
	base, err := NewGraphRAGQueryOptimizer(info, opts...)
	if err != nil {
		return nil, err
	}
	return &UnifiedGraphRAGQueryOptimizer{
		GraphRAGQueryOptimizer: base,
		budgets:                budget.NewManager(base.cfg.Budget),
	}, nil
}

// DetectGraphType infers the storage model q targets. An explicit
// graph_type wins, then a CID in the filter, then IPLD keywords in the
// query text; anything else is general. It depends on q alone.
func (u *UnifiedGraphRAGQueryOptimizer) DetectGraphType(q query.Query) query.GraphType {
	return query.DetectGraphType(q)
}

// planGraphType is the graph type a plan is built for. It is the detected
// type, except that a query with no signal at all takes GraphInfo.GraphType
// when the optimizer was configured with one.
func (u *UnifiedGraphRAGQueryOptimizer) planGraphType(q query.Query) query.GraphType {
	gt := u.DetectGraphType(q)
	if gt == query.GraphGeneral && q.GraphType == "" && u.info.GraphType != "" {
		return u.info.GraphType
	}
	return gt
}

// OptimizeQuery builds the plan for q. Fields the caller set explicitly are
// kept; the rest come from the heuristics.
func (u *UnifiedGraphRAGQueryOptimizer) OptimizeQuery(ctx context.Context, q query.Query) (query.Plan, error) {
	_, span := u.tracer.Start(ctx, "UnifiedGraphRAGQueryOptimizer.OptimizeQuery")
	defer span.End()

	gt := u.planGraphType(q)
	plan, err := u.Plan(q, gt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return query.Plan{}, err
	}
	span.SetAttributes(
		attribute.String("graph.type", string(gt)),
		attribute.String("traversal.strategy", string(plan.Strategy())),
		attribute.Int("traversal.max_depth", plan.Query.Traversal.MaxDepth),
		attribute.Int("vector.top_k", plan.Query.VectorParams.TopK),
	)
	return plan, nil
}

// ParseAndOptimize decodes a JSON query and plans it.
func (u *UnifiedGraphRAGQueryOptimizer) ParseAndOptimize(ctx context.Context, data []byte) (query.Plan, error) {
	var q query.Query
	if err := q.UnmarshalJSON(data); err != nil {
		return query.Plan{}, err
	}
	return u.OptimizeQuery(ctx, q)
}

// TopEntities returns the highest memoized importance scores.
func (u *UnifiedGraphRAGQueryOptimizer) TopEntities(ctx context.Context, n int) ([]stats.EntityScore, error) {
	return u.tstats.TopEntities(ctx, n)
}

// execution carries the mutable state of one ExecuteQuery call.
type execution struct {
	info    ExecutionInfo
	budgets *budget.Manager
	budget  *budget.Budget
	results []graph.Result
	last    time.Time
	stopped bool
	// sources holds, per edge type, the nodes edges were followed from.
	sources map[string]map[string]struct{}
}

// ExecuteQuery plans q and runs it against p: vector search for seeds,
// then expansion with the strategy the plan names. The budget is checked
// after the search and after every batch; on exhaustion traversal stops and
// the partial results are returned with State BudgetExhausted and a nil
// error.
//
// Invalid queries and processors lacking the needed capability fail before
// any processor call. Processor errors are returned unchanged.
func (u *UnifiedGraphRAGQueryOptimizer) ExecuteQuery(ctx context.Context, p graph.Processor, q query.Query) ([]graph.Result, ExecutionInfo, error) {
	start := time.Now()
	if q.QueryID == "" {
		q.QueryID = uuid.NewString()
	}

	ctx, span := u.tracer.Start(ctx, "UnifiedGraphRAGQueryOptimizer.ExecuteQuery",
		trace.WithAttributes(attribute.String("query.id", q.QueryID)),
	)
	defer span.End()

	ex := &execution{
		info:    ExecutionInfo{QueryID: q.QueryID, State: StateReceived},
		budgets: u.budgets,
		last:    start,
	}

	fail := func(err error) ([]graph.Result, ExecutionInfo, error) {
		ex.info.State = StateFailed
		if ex.budget != nil {
			ex.info.Consumption = ex.budget.Consumed()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.observe(ex, time.Since(start))
		u.logger.Debug("query failed", "query_id", q.QueryID, "error", err)
		return nil, ex.info, err
	}

	plan, err := u.OptimizeQuery(ctx, q)
	if err != nil {
		return fail(err)
	}
	ex.info.Plan = plan
	ex.info.GraphType = plan.GraphType
	ex.info.State = StateRewritten
	span.SetAttributes(
		attribute.String("graph.type", string(plan.GraphType)),
		attribute.String("traversal.strategy", string(plan.Strategy())),
	)

	expand, err := u.expander(p, plan)
	if err != nil {
		return fail(err)
	}

	ex.budget = u.budgets.NewBudget(plan)
	ex.info.Limits = ex.budget.Limits()
	ex.info.State = StateBudgeted

	ex.info.State = StateExecuting
	seeds, err := u.seeds(ctx, p, plan, ex)
	if err != nil {
		return fail(err)
	}
	ex.results = append(ex.results, seeds...)

	if !ex.stopped && len(seeds) > 0 {
		if err := expand(ctx, seeds, ex.accept); err != nil {
			return fail(err)
		}
	}

	ex.info.Consumption = ex.budget.Consumed()
	if ex.budget.Status() == budget.Exhausted {
		ex.info.State = StateBudgetExhausted
	} else {
		ex.info.State = StateCompleted
	}

	elapsed := time.Since(start)
	lookups := ex.info.ImportanceCacheHits + ex.info.ImportanceCacheMisses
	cacheHit := lookups > 0 && ex.info.ImportanceCacheMisses == 0
	u.tstats.ObserveEdges(ex.info.EdgesTraversed)
	u.qstats.RecordTraversal(q.QueryID, elapsed, cacheHit, ex.fanout(), u.cfg.Budget.BranchingEstimate)
	u.observe(ex, elapsed)

	span.SetAttributes(
		attribute.String("execution.state", string(ex.info.State)),
		attribute.Int("execution.results", len(ex.results)),
		attribute.Int("budget.nodes_visited", ex.info.Consumption.NodesVisited),
		attribute.Bool("budget.exhausted", ex.info.Consumption.Exhausted),
	)
	u.logger.Debug("query executed",
		"query_id", q.QueryID,
		"graph_type", plan.GraphType,
		"strategy", plan.Strategy(),
		"state", ex.info.State,
		"results", len(ex.results),
		"batches", ex.info.Batches,
		"nodes_visited", ex.info.Consumption.NodesVisited,
		"duration", elapsed,
	)
	return ex.results, ex.info, nil
}

type expandFunc func(ctx context.Context, seeds []graph.Result, fn graph.BatchFunc) error

// expander resolves the processor capability the plan needs. No processor
// method is called here.
func (u *UnifiedGraphRAGQueryOptimizer) expander(p graph.Processor, plan query.Plan) (expandFunc, error) {
	t := plan.Query.Traversal
	switch plan.Strategy() {
	case query.StrategyDAGTraversal:
		dp, ok := p.(graph.DAGProcessor)
		if !ok {
			return nil, &UnsupportedStrategyError{Strategy: t.Strategy, GraphType: plan.GraphType, Processor: fmt.Sprintf("%T", p)}
		}
		opts := graph.DAGOptions{
			MaxDepth:               t.MaxDepth,
			EdgeTypes:              t.EdgeTypes,
			UseCIDPathOptimization: query.BoolValue(t.UseCIDPathOptimization),
			EnablePathCaching:      query.BoolValue(t.EnablePathCaching),
			BatchLoading:           query.BoolValue(t.BatchLoading),
			BatchSize:              query.IntValue(t.BatchSize),
			VisitNodesOnce:         query.BoolValue(t.VisitNodesOnce),
		}
		return func(ctx context.Context, seeds []graph.Result, fn graph.BatchFunc) error {
			return dp.ExpandByDAGTraversal(ctx, seeds, opts, fn)
		}, nil
	case query.StrategyDefault:
		gp, ok := p.(graph.GeneralProcessor)
		if !ok {
			return nil, &UnsupportedStrategyError{Strategy: t.Strategy, GraphType: plan.GraphType, Processor: fmt.Sprintf("%T", p)}
		}
		opts := graph.ExpandOptions{MaxDepth: t.MaxDepth, EdgeTypes: t.EdgeTypes}
		return func(ctx context.Context, seeds []graph.Result, fn graph.BatchFunc) error {
			return gp.Expand(ctx, seeds, opts, fn)
		}, nil
	default:
		return nil, &UnsupportedStrategyError{Strategy: t.Strategy, GraphType: plan.GraphType, Processor: fmt.Sprintf("%T", p)}
	}
}

// seeds runs the vector search, dedupes and trims the candidates, charges
// the budget and scores seed importance.
func (u *UnifiedGraphRAGQueryOptimizer) seeds(ctx context.Context, p graph.Processor, plan query.Plan, ex *execution) ([]graph.Result, error) {
	rq := plan.Query
	if len(rq.QueryVector) == 0 {
		return nil, nil
	}

	opts := graph.VectorSearchOptions{
		Filter:                     rq.Filter,
		UseDimensionalityReduction: query.BoolValue(rq.VectorParams.UseDimensionalityReduction),
		UseCIDBucketOptimization:   query.BoolValue(rq.VectorParams.UseCIDBucketOptimization),
		EnableBlockBatchLoading:    query.BoolValue(rq.VectorParams.EnableBlockBatchLoading),
	}
	candidates, err := p.VectorSearch(ctx, rq.QueryVector, rq.VectorParams.TopK, opts)
	if err != nil {
		return nil, err
	}

	dag := plan.Strategy() == query.StrategyDAGTraversal
	seen := make(map[string]struct{}, len(candidates))
	seeds := make([]graph.Result, 0, min(len(candidates), rq.MaxVectorResults))
	for _, c := range candidates {
		if len(seeds) == rq.MaxVectorResults {
			break
		}
		key := c.ID
		if plan.GraphType == query.GraphIPLD && c.CID != "" {
			key = c.CID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		r := graph.Result{ID: c.ID, Score: c.Score, CID: c.CID, Metadata: c.Metadata, Seed: true}
		if dag {
			r.DAGBatch = graph.Batch(0)
		}
		seeds = append(seeds, r)
	}
	ex.info.SeedCount = len(seeds)

	u.budgets.ChargeCandidates(ex.budget, len(candidates))
	if ex.charge(len(seeds)) == budget.Exhausted {
		ex.stopped = true
	}

	if u.cfg.Execution.ScoreSeeds && len(seeds) > 0 {
		u.scoreSeeds(ctx, p, seeds, ex)
	}
	return seeds, nil
}

// scoreSeeds attaches importance to every seed with bounded concurrency.
// Importance never fails, so the group never returns an error.
func (u *UnifiedGraphRAGQueryOptimizer) scoreSeeds(ctx context.Context, p graph.Processor, seeds []graph.Result, ex *execution) {
	var hits, misses atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Execution.SeedConcurrency)
	for i := range seeds {
		g.Go(func() error {
			score, hit := u.importance(gctx, seeds[i].ID, p)
			seeds[i].Importance = score
			if hit {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	ex.info.ImportanceCacheHits = int(hits.Load())
	ex.info.ImportanceCacheMisses = int(misses.Load())
}

// accept is the BatchFunc handed to the processor. Batches that arrive
// after the budget stopped the traversal are dropped.
func (ex *execution) accept(batch []graph.Result) bool {
	if ex.stopped {
		return false
	}
	ex.info.Batches++
	ex.results = append(ex.results, batch...)
	for _, r := range batch {
		if r.Relationship == "" {
			continue
		}
		if ex.info.EdgesTraversed == nil {
			ex.info.EdgesTraversed = make(map[string]int)
			ex.sources = make(map[string]map[string]struct{})
		}
		ex.info.EdgesTraversed[r.Relationship]++
		if r.Source == "" {
			continue
		}
		if ex.sources[r.Relationship] == nil {
			ex.sources[r.Relationship] = make(map[string]struct{})
		}
		ex.sources[r.Relationship][r.Source] = struct{}{}
	}
	if ex.charge(len(batch)) == budget.Exhausted {
		ex.stopped = true
		return false
	}
	return true
}

// fanout summarizes the accepted batches per edge type.
func (ex *execution) fanout() map[string]stats.EdgeFanout {
	if len(ex.info.EdgesTraversed) == 0 {
		return nil
	}
	out := make(map[string]stats.EdgeFanout, len(ex.info.EdgesTraversed))
	for edge, n := range ex.info.EdgesTraversed {
		out[edge] = stats.EdgeFanout{Edges: n, Sources: len(ex.sources[edge])}
	}
	return out
}

// charge records nodes and the time elapsed since the previous charge.
func (ex *execution) charge(nodes int) budget.Status {
	now := time.Now()
	elapsed := now.Sub(ex.last)
	ex.last = now
	return ex.budgets.Charge(ex.budget, nodes, elapsed)
}

// observe publishes Prometheus metrics for a finished execution.
func (u *UnifiedGraphRAGQueryOptimizer) observe(ex *execution, elapsed time.Duration) {
	gt := string(ex.info.GraphType)
	if gt == "" {
		gt = "unknown"
	}
	strategy := string(ex.info.Plan.Strategy())
	if strategy == "" {
		strategy = "none"
	}
	metrics.QueryExecutionsTotal.WithLabelValues(gt, strategy, string(ex.info.State)).Inc()
	metrics.QueryExecutionDuration.WithLabelValues(gt, strategy).Observe(elapsed.Seconds())
	if ex.budget != nil {
		metrics.NodesVisited.WithLabelValues(gt).Observe(float64(ex.info.Consumption.NodesVisited))
	}
}
