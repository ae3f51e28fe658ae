package optimizer

import (
	"errors"
	"fmt"

	"github.com/sanonone/kektorplan/pkg/query"
)

// ErrInvalidParameter is query.ErrInvalidParameter, re-exported so callers
// of this package need only one import for error matching.
var ErrInvalidParameter = query.ErrInvalidParameter

// ErrUnsupportedStrategy is the sentinel matched by every
// UnsupportedStrategyError.
var ErrUnsupportedStrategy = errors.New("unsupported traversal strategy")

// UnsupportedStrategyError reports a processor that lacks the capability
// the plan's strategy requires. It is raised before any processor call and
// never triggers a fallback to another strategy.
type UnsupportedStrategyError struct {
	Strategy  query.Strategy
	GraphType query.GraphType
	// Processor is the dynamic type of the rejected processor.
	Processor string
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("processor %s does not support strategy %q required by graph type %q", e.Processor, e.Strategy, e.GraphType)
}

func (e *UnsupportedStrategyError) Is(target error) bool {
	return target == ErrUnsupportedStrategy
}
