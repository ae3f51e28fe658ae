package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FromMap decodes the dict form of a query. Reserved keys are type-checked;
// everything else lands in Query.Extra untouched.
func FromMap(m map[string]any) (Query, error) {
	var q Query
	for key, raw := range m {
		var err error
		switch key {
		case KeyQueryID:
			q.QueryID, err = asString(key, raw)
		case KeyQueryVector:
			q.QueryVector, err = asVector(key, raw)
		case KeyQueryText:
			q.QueryText, err = asString(key, raw)
		case KeyMaxVectorResults:
			var v int
			if v, err = asInt(key, raw); err == nil {
				q.MaxVectorResults = &v
			}
		case KeyMaxTraversalDepth:
			var v int
			if v, err = asInt(key, raw); err == nil {
				q.MaxTraversalDepth = &v
			}
		case KeyEdgeTypes:
			q.EdgeTypes, err = asStrings(key, raw)
		case KeyGraphType:
			var s string
			if s, err = asString(key, raw); err == nil && s != "" {
				q.GraphType, err = ParseGraphType(s)
			}
		case KeyFilter:
			q.Filter, err = asString(key, raw)
		case KeyTraversal:
			q.Traversal, err = asObject(key, raw)
		case KeyVectorParams:
			q.VectorParams, err = asObject(key, raw)
		default:
			if q.Extra == nil {
				q.Extra = make(map[string]any)
			}
			q.Extra[key] = raw
		}
		if err != nil {
			return Query{}, err
		}
	}
	return q, nil
}

// decodeObject unmarshals a JSON object keeping numbers as json.Number so
// integer parameters survive without float rounding.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return m, nil
}

func asString(key string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, v, "expected a string, got %T", v)
	}
	return s, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, invalid(key, v, "expected a boolean, got %T", v)
	}
	return b, nil
}

func asInt(key string, v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, invalid(key, v, "expected an integer")
		}
		return int(val), nil
	case json.Number:
		if n, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return int(n), nil
		}
		// 5.0 and 5e1 are integers too, as they are when decoded to float64.
		f, err := val.Float64()
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, invalid(key, v, "expected an integer")
		}
		return int(f), nil
	default:
		return 0, invalid(key, v, "expected an integer, got %T", v)
	}
}

func asFloat(key string, v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, invalid(key, v, "expected a number")
		}
		return f, nil
	default:
		return 0, invalid(key, v, "expected a number, got %T", v)
	}
}

func asVector(key string, v any) ([]float32, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []float32:
		return append([]float32(nil), val...), nil
	case []float64:
		out := make([]float32, len(val))
		for i, f := range val {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		out := make([]float32, len(val))
		for i, item := range val {
			f, err := asFloat(fmt.Sprintf("%s[%d]", key, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, invalid(key, v, "expected a list of numbers, got %T", v)
	}
}

func asStrings(key string, v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), val...), nil
	case []any:
		out := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(fmt.Sprintf("%s[%d]", key, i), item, "expected a string, got %T", item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, invalid(key, v, "expected a list of strings, got %T", v)
	}
}

func asObject(key string, v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid(key, v, "expected an object, got %T", v)
	}
	return copyMap(m), nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
