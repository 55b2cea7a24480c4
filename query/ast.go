// Package query parses, plans and executes queries over a collection.
//
// A query arrives either as a structured Query value or as SQL-like text
// (see Parse). Planning inspects the filter tree: equality and range
// predicates on indexed fields shrink the candidate set through the index,
// everything else scans. Candidates are always re-verified against the
// documents, so an indexed query and a full scan return identical results.
package query

import (
	"fmt"
	"strings"
)

// Op is a comparison operator.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpLike
	OpMatch
)

// String returns the textual form of the operator.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "IN"
	case OpLike:
		return "LIKE"
	case OpMatch:
		return "MATCH"
	default:
		return "?"
	}
}

// ParseOp parses the textual form of an operator as produced by String.
func ParseOp(s string) (Op, error) {
	for op := OpEq; op <= OpMatch; op++ {
		if strings.EqualFold(s, op.String()) {
			return op, nil
		}
	}
	return OpEq, fmt.Errorf("unknown operator %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(text []byte) error {
	parsed, err := ParseOp(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Condition is a single predicate on one field. For OpIn, Value is a []any of
// accepted scalars.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

func (c *Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// Node is one node of the filter tree. Exactly one of Cond, And or Or is set.
type Node struct {
	Cond *Condition
	And  []*Node
	Or   []*Node
}

// Cond builds a leaf node.
func Cond(field string, op Op, value any) *Node {
	return &Node{Cond: &Condition{Field: field, Op: op, Value: value}}
}

// And combines nodes conjunctively.
func And(nodes ...*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Node{And: nodes}
}

// Or combines nodes disjunctively.
func Or(nodes ...*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Node{Or: nodes}
}

func (n *Node) String() string {
	switch {
	case n == nil:
		return "true"
	case n.Cond != nil:
		return n.Cond.String()
	case len(n.And) > 0:
		parts := make([]string, len(n.And))
		for i, c := range n.And {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	case len(n.Or) > 0:
		parts := make([]string, len(n.Or))
		for i, c := range n.Or {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	default:
		return "true"
	}
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is a structured query against one collection. A nil Filter matches
// every document. Limit <= 0 means unlimited. Projection names the fields to
// keep; empty or "*" keeps the whole document.
type Query struct {
	Collection string
	Filter     *Node
	Sort       []SortKey
	Limit      int
	Offset     int
	Projection []string
}

// Validate checks the query for structural problems before execution.
func (q *Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query requires a collection")
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return validateNode(q.Filter)
}

func validateNode(n *Node) error {
	if n == nil {
		return nil
	}
	set := 0
	if n.Cond != nil {
		set++
		if n.Cond.Field == "" {
			return fmt.Errorf("condition requires a field")
		}
		if n.Cond.Op == OpIn {
			if _, ok := n.Cond.Value.([]any); !ok {
				return fmt.Errorf("IN condition on %q requires a list value", n.Cond.Field)
			}
		}
		if n.Cond.Op == OpLike || n.Cond.Op == OpMatch {
			if _, ok := n.Cond.Value.(string); !ok {
				return fmt.Errorf("%s condition on %q requires a string pattern", n.Cond.Op, n.Cond.Field)
			}
		}
	}
	if len(n.And) > 0 {
		set++
		for _, c := range n.And {
			if err := validateNode(c); err != nil {
				return err
			}
		}
	}
	if len(n.Or) > 0 {
		set++
		for _, c := range n.Or {
			if err := validateNode(c); err != nil {
				return err
			}
		}
	}
	if set != 1 {
		return fmt.Errorf("filter node must be exactly one of condition, AND group or OR group")
	}
	return nil
}
