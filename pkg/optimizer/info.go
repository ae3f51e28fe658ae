package optimizer

import (
	"fmt"
	"maps"
	"math"

	"github.com/sanonone/kektorplan/pkg/query"
)

// GraphInfo is the static shape of the graph, supplied once at
// construction. The optimizer keeps its own copy, so later changes to the
// caller's maps have no effect.
type GraphInfo struct {
	// GraphType, when set, is the storage model OptimizeQuery plans for
	// when a query carries no graph-type signal. DetectGraphType ignores it.
	GraphType query.GraphType `json:"graph_type,omitempty" yaml:"graph_type"`
	// EdgeSelectivity maps edge type to a selectivity in [0,1]; low values
	// mean broad fan-out.
	EdgeSelectivity map[string]float64 `json:"edge_selectivity,omitempty" yaml:"edge_selectivity"`
	// GraphDensity is in [0,1].
	GraphDensity float64 `json:"graph_density" yaml:"graph_density"`
}

func (g GraphInfo) validate() error {
	if g.GraphType != "" {
		if _, err := query.ParseGraphType(string(g.GraphType)); err != nil {
			return err
		}
	}
	if !unit(g.GraphDensity) {
		return &query.InvalidParameterError{Param: "graph_density", Value: g.GraphDensity, Reason: "must be in [0, 1]"}
	}
	for edge, sel := range g.EdgeSelectivity {
		if !unit(sel) {
			return &query.InvalidParameterError{
				Param:  fmt.Sprintf("edge_selectivity[%s]", edge),
				Value:  sel,
				Reason: "must be in [0, 1]",
			}
		}
	}
	return nil
}

func (g GraphInfo) clone() GraphInfo {
	g.EdgeSelectivity = maps.Clone(g.EdgeSelectivity)
	return g
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
