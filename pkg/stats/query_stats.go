// Package stats holds the process-wide ledgers the optimizer learns from:
// QueryStats (latency and historical edge selectivity) and TraversalStats
// (memoized entity importance and edge observations).
//
// Both are meant to be created once and injected; every method is safe for
// concurrent use.
package stats

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Config tunes QueryStats.
type Config struct {
	// SelectivityAlpha is the EWMA weight given to the newest selectivity
	// sample.
	SelectivityAlpha float64 `yaml:"selectivity_alpha" validate:"gt=0,lte=1"`
	// LatencyWindow is how many recent latencies Snapshot summarizes.
	LatencyWindow int `yaml:"latency_window" validate:"gte=1"`
}

// DefaultConfig returns the QueryStats defaults.
func DefaultConfig() Config {
	return Config{SelectivityAlpha: 0.3, LatencyWindow: 1024}
}

// DefaultSelectivity is reported for edge types with no history.
const DefaultSelectivity = 0.5

// Snapshot summarizes what QueryStats has recorded.
type Snapshot struct {
	Queries     int64         `json:"queries"`
	CacheHits   int64         `json:"cache_hits"`
	CacheMisses int64         `json:"cache_misses"`
	LastQueryID string        `json:"last_query_id,omitempty"`
	MeanLatency time.Duration `json:"mean_latency"`
	P50Latency  time.Duration `json:"p50_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
	// EdgeSelectivity holds the current estimate of every edge type seen.
	EdgeSelectivity map[string]float64 `json:"edge_selectivity,omitempty"`
}

// QueryStats records per-query telemetry. Recording never fails.
type QueryStats struct {
	cfg Config

	mu          sync.RWMutex
	queries     int64
	hits        int64
	lastQueryID string
	latencies   []float64 // ring buffer, milliseconds
	next        int
	selectivity map[string]float64
}

// NewQueryStats creates an empty ledger. Zero fields in cfg fall back to
// DefaultConfig.
func NewQueryStats(cfg Config) *QueryStats {
	def := DefaultConfig()
	if cfg.SelectivityAlpha <= 0 || cfg.SelectivityAlpha > 1 {
		cfg.SelectivityAlpha = def.SelectivityAlpha
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	return &QueryStats{
		cfg:         cfg,
		latencies:   make([]float64, 0, cfg.LatencyWindow),
		selectivity: make(map[string]float64),
	}
}

// Record adds one observation. edgesTraversed maps edge type to the number
// of edges of that type followed by the query; it may be nil.
//
// For every edge type present, the selectivity sample is
// 1 - count/total, folded into the running estimate with SelectivityAlpha.
func (s *QueryStats) Record(queryID string, latency time.Duration, cacheHit bool, edgesTraversed map[string]int) {
	total := 0
	for _, n := range edgesTraversed {
		if n > 0 {
			total += n
		}
	}
	var samples map[string]float64
	if total > 0 {
		samples = make(map[string]float64, len(edgesTraversed))
		for edge, n := range edgesTraversed {
			if n >= 0 {
				samples[edge] = 1 - float64(n)/float64(total)
			}
		}
	}
	s.record(queryID, latency, cacheHit, samples)
}

// EdgeFanout is how one edge type was traversed by a single query.
type EdgeFanout struct {
	// Edges is the number of edges of the type that were followed.
	Edges int `json:"edges"`
	// Sources is the number of distinct nodes they were followed from.
	Sources int `json:"sources"`
}

// RecordTraversal adds one observation measured as fan-out rather than as
// a share of the traversal, so a query restricted to a single edge type
// still says something about how broad that type is. For each type the
// sample is
//
//	1 - min(1, Edges / (Sources × branching))
//
// i.e. the observed mean out-degree against the expected branching factor.
// A chain (one edge per source) samples close to 1; a type whose sources
// fan out to branching or more children samples 0.
func (s *QueryStats) RecordTraversal(queryID string, latency time.Duration, cacheHit bool, fanout map[string]EdgeFanout, branching int) {
	if branching < 1 {
		branching = 1
	}
	var samples map[string]float64
	for edge, f := range fanout {
		if f.Edges <= 0 || f.Sources <= 0 {
			continue
		}
		if samples == nil {
			samples = make(map[string]float64, len(fanout))
		}
		degree := float64(f.Edges) / float64(f.Sources*branching)
		samples[edge] = 1 - min(1, degree)
	}
	s.record(queryID, latency, cacheHit, samples)
}

func (s *QueryStats) record(queryID string, latency time.Duration, cacheHit bool, samples map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries++
	if cacheHit {
		s.hits++
	}
	s.lastQueryID = queryID

	ms := float64(latency) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	if len(s.latencies) < s.cfg.LatencyWindow {
		s.latencies = append(s.latencies, ms)
	} else {
		s.latencies[s.next] = ms
	}
	s.next = (s.next + 1) % s.cfg.LatencyWindow

	for edge, sample := range samples {
		if prev, ok := s.selectivity[edge]; ok {
			s.selectivity[edge] = s.cfg.SelectivityAlpha*sample + (1-s.cfg.SelectivityAlpha)*prev
		} else {
			s.selectivity[edge] = sample
		}
	}
}

// EdgeSelectivity returns the historical estimate for edgeType and whether
// any history exists.
func (s *QueryStats) EdgeSelectivity(edgeType string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.selectivity[edgeType]
	return v, ok
}

// EdgeSelectivityEstimate returns the historical estimate for edgeType, or
// DefaultSelectivity when nothing has been recorded.
func (s *QueryStats) EdgeSelectivityEstimate(edgeType string) float64 {
	if v, ok := s.EdgeSelectivity(edgeType); ok {
		return v
	}
	return DefaultSelectivity
}

// Snapshot returns a consistent summary of the ledger.
func (s *QueryStats) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Queries:     s.queries,
		CacheHits:   s.hits,
		CacheMisses: s.queries - s.hits,
		LastQueryID: s.lastQueryID,
	}
	window := append([]float64(nil), s.latencies...)
	if len(s.selectivity) > 0 {
		snap.EdgeSelectivity = make(map[string]float64, len(s.selectivity))
		for k, v := range s.selectivity {
			snap.EdgeSelectivity[k] = v
		}
	}
	s.mu.RUnlock()

	if len(window) == 0 {
		return snap
	}
	sort.Float64s(window)
	snap.MeanLatency = msToDuration(stat.Mean(window, nil))
	snap.P50Latency = msToDuration(stat.Quantile(0.5, stat.Empirical, window, nil))
	snap.P95Latency = msToDuration(stat.Quantile(0.95, stat.Empirical, window, nil))
	snap.MaxLatency = msToDuration(window[len(window)-1])
	return snap
}

// Reset forgets everything recorded so far.
func (s *QueryStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = 0
	s.hits = 0
	s.lastQueryID = ""
	s.latencies = s.latencies[:0]
	s.next = 0
	s.selectivity = make(map[string]float64)
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
