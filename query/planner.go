package query

import (
	"sort"
)

// Indexes is the index lookup surface the planner consumes. The bool result
// of each lookup reports whether a usable index exists on the field.
type Indexes interface {
	LookupEqual(field string, v any) ([]string, bool)
	LookupRange(field string, lower, upper any, incLower, incUpper bool) ([]string, bool)
	LookupToken(field, token string) ([]string, bool)
}

// Plan describes the chosen execution strategy, for logging and explain
// output.
type Plan struct {
	// UsedIndex reports whether any index shrank the candidate set.
	UsedIndex bool
	// IndexedFields lists the fields whose predicates were served by an
	// index, sorted.
	IndexedFields []string
	// Candidates is the candidate-set size after index intersection, -1 for
	// a full scan.
	Candidates int
}

// plan selects candidates for the filter. Only leaves of a top-level
// conjunction are considered: a disjunction anywhere at the top forces a
// scan. Candidates from multiple indexed predicates are intersected. The
// executor re-verifies every candidate, so an over-broad set (a token-index
// superset, for instance) only costs time, never correctness.
func plan(filter *Node, idx Indexes) ([]string, Plan) {
	p := Plan{Candidates: -1}
	if filter == nil || idx == nil {
		return nil, p
	}

	leaves := conjunctionLeaves(filter)
	var candidates []string
	for _, cond := range leaves {
		ids, ok := lookupCondition(cond, idx)
		if !ok {
			continue
		}
		if !p.UsedIndex {
			p.UsedIndex = true
			candidates = ids
		} else {
			candidates = intersect(candidates, ids)
		}
		p.IndexedFields = append(p.IndexedFields, cond.Field)
	}
	if !p.UsedIndex {
		return nil, p
	}
	sort.Strings(p.IndexedFields)
	p.Candidates = len(candidates)
	return candidates, p
}

// conjunctionLeaves flattens nested AND groups into their condition leaves.
func conjunctionLeaves(n *Node) []*Condition {
	switch {
	case n == nil:
		return nil
	case n.Cond != nil:
		return []*Condition{n.Cond}
	case len(n.And) > 0:
		var out []*Condition
		for _, c := range n.And {
			out = append(out, conjunctionLeaves(c)...)
		}
		return out
	default:
		return nil
	}
}

func lookupCondition(c *Condition, idx Indexes) ([]string, bool) {
	field := leafField(c.Field)
	switch c.Op {
	case OpEq:
		return idx.LookupEqual(field, c.Value)
	case OpGt:
		return idx.LookupRange(field, c.Value, nil, false, false)
	case OpGte:
		return idx.LookupRange(field, c.Value, nil, true, false)
	case OpLt:
		return idx.LookupRange(field, nil, c.Value, false, false)
	case OpLte:
		return idx.LookupRange(field, nil, c.Value, false, true)
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return nil, false
		}
		seen := make(map[string]struct{})
		var out []string
		for _, v := range list {
			ids, ok := idx.LookupEqual(field, v)
			if !ok {
				return nil, false
			}
			for _, id := range ids {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					out = append(out, id)
				}
			}
		}
		sort.Strings(out)
		return out, true
	case OpMatch:
		// MATCH has whole-token semantics, so token postings are exactly the
		// candidate superset. LIKE is substring containment and can match
		// inside a token, which a token index cannot see; it always scans.
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, false
		}
		return idx.LookupToken(field, pattern)
	default:
		return nil, false
	}
}

// intersect merges two sorted id slices.
func intersect(a, b []string) []string {
	out := make([]string, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
