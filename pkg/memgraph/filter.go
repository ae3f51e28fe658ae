package memgraph

import (
	"fmt"
	"regexp"
	"strings"
)

// Filters are conjunctions of equality clauses:
//
//	category = 'news' AND lang = "en" AND year = 2024
//
// The pseudo-fields "id", "type" and "cid" match the node itself; every
// other field is looked up in the node properties. A bare token such as a
// CID matches a node by ID or CID.

var (
	andSplitRegex = regexp.MustCompile(`(?i)\s+AND\s+`)
	clauseRegex   = regexp.MustCompile(`^\s*([A-Za-z_][\w.]*)\s*=\s*(?:'([^']*)'|"([^"]*)"|(\S+))\s*$`)
	bareRegex     = regexp.MustCompile(`^\s*([^\s='"]+)\s*$`)
)

type clause struct {
	field string
	value string
}

type filter []clause

func parseFilter(expr string) (filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var f filter
	for _, part := range andSplitRegex.Split(expr, -1) {
		if b := bareRegex.FindStringSubmatch(part); b != nil {
			f = append(f, clause{value: b[1]})
			continue
		}
		m := clauseRegex.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("memgraph: %w: unsupported clause %q", ErrInvalidFilter, strings.TrimSpace(part))
		}
		f = append(f, clause{field: m[1], value: m[2] + m[3] + m[4]})
	}
	return f, nil
}

func (f filter) match(n *node) bool {
	for _, c := range f {
		var got string
		switch c.field {
		case "":
			if n.id != c.value && n.cid != c.value {
				return false
			}
			continue
		case "id":
			got = n.id
		case "type":
			got = n.kind
		case "cid":
			got = n.cid
		default:
			v, ok := n.props[c.field]
			if !ok {
				return false
			}
			got = fmt.Sprint(v)
		}
		if got != c.value {
			return false
		}
	}
	return true
}
