// Package budget enforces per-query resource ceilings during an open-ended
// graph traversal.
//
// A Budget is created fresh for every execution and owned by that execution
// alone; it is not safe for concurrent use and is never shared across
// queries. Charging is monotonic and exhaustion is sticky: once a Budget
// reports Exhausted it never goes back to Ok.
//
// Exhaustion is not an error. Executors stop traversing, keep what they have
// and report the condition in their telemetry.
package budget

import (
	"math"
	"time"

	"github.com/sanonone/kektorplan/pkg/query"
)

// Status is the state of a Budget.
type Status int

const (
	// Ok means every ceiling still has headroom.
	Ok Status = iota
	// Exhausted is terminal.
	Exhausted
)

func (s Status) String() string {
	if s == Exhausted {
		return "exhausted"
	}
	return "ok"
}

// Limits are the ceilings of a Budget. A zero MaxTimeMs disables the time
// ceiling.
type Limits struct {
	MaxNodesVisited     int   `json:"max_nodes_visited"`
	MaxTimeMs           int64 `json:"max_time_ms"`
	MaxVectorCandidates int   `json:"max_vector_candidates"`
}

// Consumption is what an execution has used so far.
type Consumption struct {
	NodesVisited     int   `json:"nodes_visited"`
	TimeMs           int64 `json:"time_ms"`
	VectorCandidates int   `json:"vector_candidates"`
	Exhausted        bool  `json:"exhausted"`
}

// Budget is a mutable per-execution counter.
type Budget struct {
	limits   Limits
	consumed Consumption
	elapsed  time.Duration
}

// New creates a Budget with explicit limits.
func New(limits Limits) *Budget {
	return &Budget{limits: limits}
}

// Limits returns the ceilings.
func (b *Budget) Limits() Limits { return b.limits }

// Consumed returns a copy of the consumption counters.
func (b *Budget) Consumed() Consumption { return b.consumed }

// Status reports the current state.
func (b *Budget) Status() Status {
	if b.consumed.Exhausted {
		return Exhausted
	}
	return Ok
}

// Remaining returns the headroom left under each ceiling, floored at zero.
func (b *Budget) Remaining() Limits {
	r := Limits{
		MaxNodesVisited:     b.limits.MaxNodesVisited - b.consumed.NodesVisited,
		MaxVectorCandidates: b.limits.MaxVectorCandidates - b.consumed.VectorCandidates,
	}
	if b.limits.MaxTimeMs > 0 {
		r.MaxTimeMs = b.limits.MaxTimeMs - b.consumed.TimeMs
	}
	if r.MaxNodesVisited < 0 {
		r.MaxNodesVisited = 0
	}
	if r.MaxVectorCandidates < 0 {
		r.MaxVectorCandidates = 0
	}
	if r.MaxTimeMs < 0 {
		r.MaxTimeMs = 0
	}
	return r
}

func (b *Budget) charge(nodes, candidates int, elapsed time.Duration) Status {
	// Monotonic: negative deltas are ignored.
	if nodes > 0 {
		b.consumed.NodesVisited += nodes
	}
	if candidates > 0 {
		b.consumed.VectorCandidates += candidates
	}
	if elapsed > 0 {
		b.elapsed += elapsed
		b.consumed.TimeMs = b.elapsed.Milliseconds()
	}
	if b.consumed.Exhausted {
		return Exhausted
	}

	l := b.limits
	if (l.MaxNodesVisited > 0 && b.consumed.NodesVisited > l.MaxNodesVisited) ||
		(l.MaxVectorCandidates > 0 && b.consumed.VectorCandidates > l.MaxVectorCandidates) ||
		(l.MaxTimeMs > 0 && b.consumed.TimeMs > l.MaxTimeMs) {
		b.consumed.Exhausted = true
		return Exhausted
	}
	return Ok
}

// Config derives budget ceilings from plans.
type Config struct {
	// BranchingEstimate is the assumed fan-out per traversal level.
	BranchingEstimate int `yaml:"branching_estimate" validate:"gte=1"`
	// SafetyFactor multiplies the node estimate to leave headroom.
	SafetyFactor float64 `yaml:"safety_factor" validate:"gt=0"`
	// MaxTimeMs is the wall-clock ceiling per execution (0 = unlimited).
	MaxTimeMs int64 `yaml:"max_time_ms" validate:"gte=0"`
	// MaxVectorCandidates caps the vector candidates charged per execution.
	MaxVectorCandidates int `yaml:"max_vector_candidates" validate:"gte=1"`
}

// DefaultConfig returns the ceilings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BranchingEstimate:   10,
		SafetyFactor:        2.0,
		MaxTimeMs:           5000,
		MaxVectorCandidates: 10000,
	}
}

// Manager creates and charges Budgets. It holds only configuration and is
// safe for concurrent use; the Budgets it hands out are not.
type Manager struct {
	cfg Config
}

// NewManager creates a Manager. Zero fields fall back to DefaultConfig.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.BranchingEstimate <= 0 {
		cfg.BranchingEstimate = def.BranchingEstimate
	}
	if cfg.SafetyFactor <= 0 {
		cfg.SafetyFactor = def.SafetyFactor
	}
	if cfg.MaxTimeMs < 0 {
		cfg.MaxTimeMs = 0
	}
	if cfg.MaxVectorCandidates <= 0 {
		cfg.MaxVectorCandidates = def.MaxVectorCandidates
	}
	return &Manager{cfg: cfg}
}

// NewBudget derives a fresh Budget for plan:
// max_nodes_visited = ceil(max_depth × branching_estimate × safety_factor).
func (m *Manager) NewBudget(plan query.Plan) *Budget {
	depth := plan.Query.Traversal.MaxDepth
	if depth <= 0 {
		depth = 1
	}
	nodes := int(math.Ceil(float64(depth) * float64(m.cfg.BranchingEstimate) * m.cfg.SafetyFactor))
	return New(Limits{
		MaxNodesVisited:     nodes,
		MaxTimeMs:           m.cfg.MaxTimeMs,
		MaxVectorCandidates: m.cfg.MaxVectorCandidates,
	})
}

// Charge records nodesVisited and elapsed time against b. Once it returns
// Exhausted, every later call for the same Budget also returns Exhausted.
func (m *Manager) Charge(b *Budget, nodesVisited int, elapsed time.Duration) Status {
	return b.charge(nodesVisited, 0, elapsed)
}

// ChargeCandidates records vector candidates fetched for b.
func (m *Manager) ChargeCandidates(b *Budget, candidates int) Status {
	return b.charge(0, candidates, 0)
}
