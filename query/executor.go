package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/index"
)

// Source reads the documents of one collection.
type Source interface {
	Read(id string) (*document.Document, error)
	List() ([]*document.Document, error)
}

// Options configures an Executor.
type Options struct {
	// DeepScan lets field resolution descend one level into nested
	// sub-objects when a field is missing at the document root. Best-effort
	// convenience, on by default.
	DeepScan bool
}

// WithoutDeepScan disables the one-level deep-scan fallback.
func WithoutDeepScan() func(*Options) {
	return func(o *Options) { o.DeepScan = false }
}

// Executor runs queries against one collection.
type Executor struct {
	source   Source
	indexes  Indexes
	deepScan bool
}

// New creates an executor. indexes may be nil, forcing full scans.
func New(source Source, indexes Indexes, optFns ...func(*Options)) *Executor {
	opts := Options{DeepScan: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{source: source, indexes: indexes, deepScan: opts.DeepScan}
}

// Result is the outcome of a query.
type Result struct {
	Docs []*document.Document
	// Plan records the chosen strategy.
	Plan Plan
	// Examined counts documents loaded and tested against the filter.
	Examined int
	// Matched counts documents passing the filter, before pagination.
	Matched int
}

// Execute runs the query. Every candidate is re-verified against the filter,
// so results are identical with and without indexes.
func (e *Executor) Execute(ctx context.Context, q *Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	eval, err := e.compile(q.Filter)
	if err != nil {
		return nil, err
	}

	candidates, p := plan(q.Filter, e.indexes)

	var docs []*document.Document
	if p.UsedIndex {
		docs = make([]*document.Document, 0, len(candidates))
		for _, id := range candidates {
			doc, err := e.source.Read(id)
			if err != nil {
				// Stale index entries are not an error for the reader.
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, err
			}
			docs = append(docs, doc)
		}
	} else {
		if docs, err = e.source.List(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Plan: p, Examined: len(docs)}
	matched := docs[:0:0]
	for _, doc := range docs {
		if eval == nil || eval(doc) {
			matched = append(matched, doc)
		}
	}
	res.Matched = len(matched)

	e.sortDocs(matched, q.Sort)

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	res.Docs = e.project(matched, q.Projection)
	return res, nil
}

// resolve finds a field value in a document. Qualified names strip to their
// leaf, nested dot paths descend, matching is case-insensitive, and when the
// field is absent at the root the deep-scan fallback tries each sub-object
// one level down in sorted key order, first hit wins.
func (e *Executor) resolve(doc *document.Document, field string) (any, bool) {
	if strings.EqualFold(field, "id") {
		return doc.ID, true
	}
	if v, ok := document.Lookup(doc.Data, field); ok {
		return v, true
	}
	leaf := leafField(field)
	if leaf != field {
		if v, ok := document.Lookup(doc.Data, leaf); ok {
			return v, true
		}
	}
	if !e.deepScan {
		return nil, false
	}
	return document.LookupDeep(doc.Data, leaf)
}

// leafField strips a table qualifier: "users.name" resolves like "name" when
// no nested object carries the full path.
func leafField(field string) string {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		return field[i+1:]
	}
	return field
}

type evalFn func(*document.Document) bool

// compile turns the filter tree into an evaluator, pre-compiling LIKE
// patterns.
func (e *Executor) compile(n *Node) (evalFn, error) {
	if n == nil {
		return nil, nil
	}
	switch {
	case n.Cond != nil:
		return e.compileCondition(n.Cond)
	case len(n.And) > 0:
		subs := make([]evalFn, len(n.And))
		for i, c := range n.And {
			sub, err := e.compile(c)
			if err != nil {
				return nil, err
			}
			subs[i] = sub
		}
		return func(doc *document.Document) bool {
			for _, sub := range subs {
				if !sub(doc) {
					return false
				}
			}
			return true
		}, nil
	case len(n.Or) > 0:
		subs := make([]evalFn, len(n.Or))
		for i, c := range n.Or {
			sub, err := e.compile(c)
			if err != nil {
				return nil, err
			}
			subs[i] = sub
		}
		return func(doc *document.Document) bool {
			for _, sub := range subs {
				if sub(doc) {
					return true
				}
			}
			return false
		}, nil
	default:
		return func(*document.Document) bool { return true }, nil
	}
}

func (e *Executor) compileCondition(c *Condition) (evalFn, error) {
	var test func(v any) bool

	switch c.Op {
	case OpEq, OpNe:
		want := c.Value
		eq := func(v any) bool {
			if document.Equal(v, want) {
				return true
			}
			for _, el := range document.Values(v) {
				if document.Equal(el, want) {
					return true
				}
			}
			return false
		}
		if c.Op == OpEq {
			test = eq
		} else {
			test = func(v any) bool { return !eq(v) }
		}
	case OpGt, OpGte, OpLt, OpLte:
		op, want := c.Op, c.Value
		test = func(v any) bool {
			for _, el := range document.Values(v) {
				cmp, ok := document.Compare(el, want)
				if !ok {
					continue
				}
				switch op {
				case OpGt:
					if cmp > 0 {
						return true
					}
				case OpGte:
					if cmp >= 0 {
						return true
					}
				case OpLt:
					if cmp < 0 {
						return true
					}
				case OpLte:
					if cmp <= 0 {
						return true
					}
				}
			}
			return false
		}
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("IN condition on %q requires a list value", c.Field)
		}
		test = func(v any) bool {
			for _, want := range list {
				if document.Equal(v, want) {
					return true
				}
				for _, el := range document.Values(v) {
					if document.Equal(el, want) {
						return true
					}
				}
			}
			return false
		}
	case OpLike:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("LIKE condition on %q requires a string pattern", c.Field)
		}
		match, err := likeMatcher(pattern)
		if err != nil {
			return nil, err
		}
		test = stringTest(match)
	case OpMatch:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("MATCH condition on %q requires a string pattern", c.Field)
		}
		want := index.Tokenize(pattern)
		test = stringTest(func(s string) bool {
			if len(want) == 0 {
				return false
			}
			have := make(map[string]struct{})
			for _, tok := range index.Tokenize(s) {
				have[tok] = struct{}{}
			}
			for _, tok := range want {
				if _, ok := have[tok]; !ok {
					return false
				}
			}
			return true
		})
	default:
		return nil, fmt.Errorf("unsupported operator %s", c.Op)
	}

	field := c.Field
	return func(doc *document.Document) bool {
		v, ok := e.resolve(doc, field)
		if !ok {
			return false
		}
		return test(v)
	}, nil
}

// stringTest lifts a string predicate to field values: strings test directly,
// arrays test each string element.
func stringTest(match func(string) bool) func(any) bool {
	return func(v any) bool {
		if s, ok := document.AsString(v); ok {
			return match(s)
		}
		for _, el := range document.Values(v) {
			if s, ok := document.AsString(el); ok && match(s) {
				return true
			}
		}
		return false
	}
}

// likeMatcher builds the LIKE predicate. Patterns with % or _ wildcards
// translate to an anchored case-insensitive regexp; a pattern without any
// wildcard means case-insensitive substring containment, not exact equality.
// That is a deliberate usability choice, not SQL semantics.
func likeMatcher(pattern string) (func(string) bool, error) {
	if !hasWildcard(pattern) {
		needle := strings.ToLower(pattern)
		return func(s string) bool {
			return strings.Contains(strings.ToLower(s), needle)
		}, nil
	}
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("bad LIKE pattern %q: %w", pattern, err)
	}
	return re.MatchString, nil
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "%_")
}

// sortDocs orders docs by the sort keys with the document id as the final
// tiebreaker, so equal keys never produce an unstable order. Documents
// missing a sort field order after documents carrying it.
func (e *Executor) sortDocs(docs []*document.Document, keys []SortKey) {
	if len(keys) == 0 {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		for _, key := range keys {
			av, aok := e.resolve(a, key.Field)
			bv, bok := e.resolve(b, key.Field)
			if aok != bok {
				return aok
			}
			if !aok {
				continue
			}
			cmp, ok := document.Compare(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return a.ID < b.ID
	})
}

// project reduces documents to the requested fields, keyed by leaf name.
// An empty projection or "*" keeps the full document.
func (e *Executor) project(docs []*document.Document, fields []string) []*document.Document {
	if len(fields) == 0 {
		return docs
	}
	for _, f := range fields {
		if f == "*" {
			return docs
		}
	}
	out := make([]*document.Document, len(docs))
	for i, doc := range docs {
		data := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := e.resolve(doc, f); ok {
				data[leafField(f)] = v
			}
		}
		projected := *doc
		projected.Data = data
		out[i] = &projected
	}
	return out
}
