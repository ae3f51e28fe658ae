package query

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is the sentinel matched by every InvalidParameterError.
var ErrInvalidParameter = errors.New("invalid query parameter")

// InvalidParameterError reports a malformed query. It is returned before any
// Graph Processor call is made and is never retried internally.
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid parameter %q (%v): %s", e.Param, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidParameter) succeed.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

func invalid(param string, value any, format string, args ...any) error {
	return &InvalidParameterError{Param: param, Value: value, Reason: fmt.Sprintf(format, args...)}
}
