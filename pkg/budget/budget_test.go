package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/kektorplan/pkg/query"
)

func planWithDepth(depth int) query.Plan {
	return query.Plan{Query: query.RewrittenQuery{Traversal: query.TraversalParams{MaxDepth: depth}}}
}

func TestNewBudgetFromPlan(t *testing.T) {
	m := NewManager(Config{BranchingEstimate: 4, SafetyFactor: 1.5, MaxTimeMs: 200, MaxVectorCandidates: 50})

	b := m.NewBudget(planWithDepth(3))
	l := b.Limits()
	assert.Equal(t, 18, l.MaxNodesVisited) // 3 * 4 * 1.5
	assert.Equal(t, int64(200), l.MaxTimeMs)
	assert.Equal(t, 50, l.MaxVectorCandidates)
	assert.Equal(t, Ok, b.Status())
}

func TestDefaultsApplied(t *testing.T) {
	m := NewManager(Config{})
	b := m.NewBudget(planWithDepth(3))
	assert.Equal(t, 60, b.Limits().MaxNodesVisited)
	assert.Equal(t, int64(5000), b.Limits().MaxTimeMs)
}

func TestChargeExhaustsOnNodes(t *testing.T) {
	m := NewManager(Config{BranchingEstimate: 5, SafetyFactor: 1, MaxTimeMs: 0})
	b := m.NewBudget(planWithDepth(2)) // 10 nodes

	assert.Equal(t, Ok, m.Charge(b, 6, time.Millisecond))
	assert.Equal(t, Ok, m.Charge(b, 4, time.Millisecond)) // exactly at the ceiling
	assert.Equal(t, Exhausted, m.Charge(b, 1, 0))

	c := b.Consumed()
	assert.Equal(t, 11, c.NodesVisited)
	assert.True(t, c.Exhausted)
	assert.Equal(t, 0, b.Remaining().MaxNodesVisited)
}

func TestChargeExhaustsOnTime(t *testing.T) {
	m := NewManager(Config{BranchingEstimate: 100, SafetyFactor: 1, MaxTimeMs: 10})
	b := m.NewBudget(planWithDepth(1))

	assert.Equal(t, Ok, m.Charge(b, 1, 6*time.Millisecond))
	assert.Equal(t, Exhausted, m.Charge(b, 1, 6*time.Millisecond))
	assert.Equal(t, int64(12), b.Consumed().TimeMs)
}

func TestChargeCandidates(t *testing.T) {
	m := NewManager(Config{MaxVectorCandidates: 3})
	b := m.NewBudget(planWithDepth(1))

	assert.Equal(t, Ok, m.ChargeCandidates(b, 3))
	assert.Equal(t, Exhausted, m.ChargeCandidates(b, 1))
}

func TestExhaustionIsSticky(t *testing.T) {
	m := NewManager(Config{BranchingEstimate: 1, SafetyFactor: 1})
	b := m.NewBudget(planWithDepth(1))

	require.Equal(t, Exhausted, m.Charge(b, 2, 0))

	// Nothing can revive it: zero, negative and tiny charges all stay exhausted.
	for _, n := range []int{0, -5, 1} {
		assert.Equal(t, Exhausted, m.Charge(b, n, 0))
	}
	assert.Equal(t, Exhausted, m.ChargeCandidates(b, 0))
	assert.Equal(t, Exhausted, b.Status())
}

func TestChargeIsMonotonic(t *testing.T) {
	m := NewManager(Config{BranchingEstimate: 100, SafetyFactor: 1})
	b := m.NewBudget(planWithDepth(1))

	m.Charge(b, 10, 5*time.Millisecond)
	m.Charge(b, -10, -5*time.Millisecond)

	c := b.Consumed()
	assert.Equal(t, 10, c.NodesVisited)
	assert.Equal(t, int64(5), c.TimeMs)
}
