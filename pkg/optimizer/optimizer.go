// Package optimizer plans and executes GraphRAG retrieval: a vector search
// for seed entities followed by a budgeted graph expansion.
//
// GraphRAGQueryOptimizer holds the storage-independent heuristics (candidate
// counts, traversal depth, entity importance). UnifiedGraphRAGQueryOptimizer
// is the façade callers use: it detects the graph's storage model, builds
// the plan and drives a graph.Processor under a budget.
package optimizer

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/metrics"
	"github.com/sanonone/kektorplan/pkg/query"
	"github.com/sanonone/kektorplan/pkg/stats"
)

const tracerName = "github.com/sanonone/kektorplan/pkg/optimizer"

type options struct {
	cfg            Config
	queryStats     *stats.QueryStats
	traversalStats *stats.TraversalStats
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

// Option configures an optimizer.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithQueryStats shares a QueryStats ledger with other optimizers.
func WithQueryStats(s *stats.QueryStats) Option {
	return func(o *options) { o.queryStats = s }
}

// WithTraversalStats shares a TraversalStats ledger, for example one backed
// by Redis.
func WithTraversalStats(s *stats.TraversalStats) Option {
	return func(o *options) { o.traversalStats = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the OpenTelemetry provider. The default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func buildOptions(opts []Option) (options, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return o, err
	}
	if o.queryStats == nil {
		o.queryStats = stats.NewQueryStats(o.cfg.Stats)
	}
	if o.traversalStats == nil {
		o.traversalStats = stats.NewTraversalStats(nil)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o, nil
}

// GraphRAGQueryOptimizer computes baseline plan parameters from the static
// graph shape and the recorded history. It implements query.Advisor and is
// safe for concurrent use.
type GraphRAGQueryOptimizer struct {
	info     GraphInfo
	cfg      Config
	rewriter *query.Rewriter
	qstats   *stats.QueryStats
	tstats   *stats.TraversalStats
	logger   *slog.Logger
	tracer   trace.Tracer

	flight singleflight.Group
}

var _ query.Advisor = (*GraphRAGQueryOptimizer)(nil)

// NewGraphRAGQueryOptimizer validates info and creates the optimizer.
func NewGraphRAGQueryOptimizer(info GraphInfo, opts ...Option) (*GraphRAGQueryOptimizer, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newBase(info, o), nil
}

func newBase(info GraphInfo, o options) *GraphRAGQueryOptimizer {
	return &GraphRAGQueryOptimizer{
		info:     info.clone(),
		cfg:      o.cfg,
		rewriter: query.NewRewriter(o.cfg.Rewrite),
		qstats:   o.queryStats,
		tstats:   o.traversalStats,
		logger:   o.logger,
		tracer:   o.tracerProvider.Tracer(tracerName),
	}
}

// GraphInfo returns a copy of the static graph description.
func (o *GraphRAGQueryOptimizer) GraphInfo() GraphInfo { return o.info.clone() }

// Config returns the effective configuration.
func (o *GraphRAGQueryOptimizer) Config() Config { return o.cfg }

// QueryStats returns the query ledger.
func (o *GraphRAGQueryOptimizer) QueryStats() *stats.QueryStats { return o.qstats }

// TraversalStats returns the traversal ledger.
func (o *GraphRAGQueryOptimizer) TraversalStats() *stats.TraversalStats { return o.tstats }

// SuggestVectorCandidateCount widens the candidate pool for denser graphs:
// ceil(maxVectorResults × (1 + graphDensity)).
func (o *GraphRAGQueryOptimizer) SuggestVectorCandidateCount(maxVectorResults int, graphDensity float64) int {
	if maxVectorResults <= 0 {
		return 0
	}
	d := math.Min(math.Max(graphDensity, 0), 1)
	return int(math.Ceil(float64(maxVectorResults) * (1 + d)))
}

// SuggestTraversalDepth caps depth when edges fan out broadly:
// clamp(floor(requested × (0.5 + selectivity)), 1, requested).
// It never returns more than requested.
func (o *GraphRAGQueryOptimizer) SuggestTraversalDepth(requested int, selectivity float64) int {
	if requested <= 1 {
		return max(requested, 0)
	}
	sel := math.Min(math.Max(selectivity, 0), 1)
	d := int(math.Floor(float64(requested) * (0.5 + sel)))
	return min(max(d, 1), requested)
}

// EdgeSelectivity returns the mean effective selectivity of edgeTypes. Per
// type, the static GraphInfo value and the historical estimate are averaged
// when both exist; a type with neither counts as neutral (0.5). An empty
// list averages over every type GraphInfo knows.
func (o *GraphRAGQueryOptimizer) EdgeSelectivity(edgeTypes []string) float64 {
	if len(edgeTypes) == 0 {
		edgeTypes = slices.Sorted(maps.Keys(o.info.EdgeSelectivity))
	}
	if len(edgeTypes) == 0 {
		return stats.DefaultSelectivity
	}
	var sum float64
	for _, et := range edgeTypes {
		static, hasStatic := o.info.EdgeSelectivity[et]
		hist, hasHist := o.qstats.EdgeSelectivity(et)
		switch {
		case hasStatic && hasHist:
			sum += (static + hist) / 2
		case hasStatic:
			sum += static
		case hasHist:
			sum += hist
		default:
			sum += stats.DefaultSelectivity
		}
	}
	return sum / float64(len(edgeTypes))
}

// VectorCandidateCount implements query.Advisor.
func (o *GraphRAGQueryOptimizer) VectorCandidateCount(maxVectorResults int) int {
	return o.SuggestVectorCandidateCount(maxVectorResults, o.info.GraphDensity)
}

// TraversalDepth implements query.Advisor.
func (o *GraphRAGQueryOptimizer) TraversalDepth(requested int, edgeTypes []string) int {
	return o.SuggestTraversalDepth(requested, o.EdgeSelectivity(edgeTypes))
}

// Plan rewrites q for graph type gt, filling unset fields from the
// heuristics above.
func (o *GraphRAGQueryOptimizer) Plan(q query.Query, gt query.GraphType) (query.Plan, error) {
	return o.rewriter.RewriteWithAdvisor(q, gt, o)
}

// CalculateEntityImportance scores an entity by its connectivity:
// clamp((0.4·inbound + 0.6·outbound) / 25, 0, 1) with the default weights.
// Scores are memoized in TraversalStats; a cached score is returned without
// contacting the processor. Failed lookups score 0 and are not cached.
func (o *GraphRAGQueryOptimizer) CalculateEntityImportance(ctx context.Context, entityID string, p graph.Processor) float64 {
	score, _ := o.importance(ctx, entityID, p)
	return score
}

// importance also reports whether the score came from the cache.
func (o *GraphRAGQueryOptimizer) importance(ctx context.Context, entityID string, p graph.Processor) (float64, bool) {
	if score, ok := o.cachedImportance(ctx, entityID); ok {
		metrics.ImportanceLookupsTotal.WithLabelValues("hit").Inc()
		return score, true
	}

	// Concurrent misses for the same entity share one processor call.
	v, err, _ := o.flight.Do(entityID, func() (any, error) {
		if score, ok := o.cachedImportance(ctx, entityID); ok {
			return score, nil
		}
		info, err := p.EntityInfo(ctx, entityID)
		if err != nil {
			return nil, err
		}
		score := o.scoreConnectivity(len(info.Inbound), len(info.Outbound))
		if err := o.tstats.SetImportance(ctx, entityID, score); err != nil {
			o.logger.Warn("failed to cache entity importance", "entity_id", entityID, "error", err)
		}
		return score, nil
	})
	if err != nil {
		metrics.ImportanceLookupsTotal.WithLabelValues("error").Inc()
		o.logger.Warn("entity importance lookup failed, using 0", "entity_id", entityID, "error", err)
		return 0, false
	}
	metrics.ImportanceLookupsTotal.WithLabelValues("miss").Inc()
	return v.(float64), false
}

func (o *GraphRAGQueryOptimizer) cachedImportance(ctx context.Context, entityID string) (float64, bool) {
	score, ok, err := o.tstats.Importance(ctx, entityID)
	if err != nil {
		o.logger.Warn("importance cache unavailable", "entity_id", entityID, "error", err)
		return 0, false
	}
	return score, ok
}

func (o *GraphRAGQueryOptimizer) scoreConnectivity(in, out int) float64 {
	c := o.cfg.Importance
	raw := (c.InboundWeight*float64(in) + c.OutboundWeight*float64(out)) / c.Normalization
	return math.Min(math.Max(raw, 0), 1)
}
