package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse turns SQL-like text into a structured query.
//
// Grammar subset:
//
//	SELECT <fields|*> FROM <collection>
//	  [WHERE <cond> [AND|OR <cond>]...]
//	  [ORDER BY <field> [ASC|DESC] [, ...]]
//	  [LIMIT <n>] [OFFSET <n>]
//
// Conditions compare a field against a literal with =, !=, <>, >, >=, <, <=,
// IN (list) or LIKE (pattern). AND binds tighter than OR; parentheses group.
// Keywords are case-insensitive.
func Parse(text string) (*Query, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	q, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, fmt.Errorf("unexpected %q after end of query", p.peek().text)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol // operators and punctuation
)

type token struct {
	kind tokenKind
	text string
}

func lex(text string) ([]token, error) {
	var out []token
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			var sb strings.Builder
			for j < len(runes) && runes[j] != quote {
				sb.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal at offset %d", i)
			}
			out = append(out, token{kind: tokString, text: sb.String()})
			i = j + 1
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			out = append(out, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}
			out = append(out, token{kind: tokIdent, text: string(runes[i:j])})
			i = j
		case strings.ContainsRune("=!<>(),*", r):
			// Two-rune operators first.
			if i+1 < len(runes) {
				two := string(runes[i : i+2])
				switch two {
				case ">=", "<=", "!=", "<>", "==":
					out = append(out, token{kind: tokSymbol, text: two})
					i += 2
					continue
				}
			}
			out = append(out, token{kind: tokSymbol, text: string(r)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}
	return append(out, token{kind: tokEOF}), nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool { return p.peek().kind == tokEOF }

// keyword consumes the next token if it is the given keyword.
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.next()
		return true
	}
	return false
}

// symbol consumes the next token if it is the given symbol.
func (p *parser) symbol(s string) bool {
	t := p.peek()
	if t.kind == tokSymbol && t.text == s {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		return fmt.Errorf("expected %s, found %q", kw, p.peek().text)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", fmt.Errorf("expected identifier, found %q", t.text)
	}
	p.next()
	return t.text, nil
}

func (p *parser) parseSelect() (*Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	q := &Query{}
	if p.symbol("*") {
		// Full documents.
	} else {
		for {
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			q.Projection = append(q.Projection, field)
			if !p.symbol(",") {
				break
			}
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	collection, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	q.Collection = collection

	if p.keyword("WHERE") {
		filter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}

	if p.keyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			key := SortKey{Field: field}
			if p.keyword("DESC") {
				key.Desc = true
			} else {
				p.keyword("ASC")
			}
			q.Sort = append(q.Sort, key)
			if !p.symbol(",") {
				break
			}
		}
	}

	if p.keyword("LIMIT") {
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		q.Limit = n
	}
	if p.keyword("OFFSET") {
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		q.Offset = n
	}
	return q, nil
}

func (p *parser) expectInt() (int, error) {
	t := p.peek()
	if t.kind != tokNumber {
		return 0, fmt.Errorf("expected number, found %q", t.text)
	}
	p.next()
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, fmt.Errorf("expected integer, found %q", t.text)
	}
	return n, nil
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	nodes := []*Node{left}
	for p.keyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, right)
	}
	return Or(nodes...), nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	nodes := []*Node{left}
	for p.keyword("AND") {
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, right)
	}
	return And(nodes...), nil
}

func (p *parser) parsePrimary() (*Node, error) {
	if p.symbol("(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.symbol(")") {
			return nil, fmt.Errorf("expected ), found %q", p.peek().text)
		}
		return inner, nil
	}
	return p.parseCondition()
}

func (p *parser) parseCondition() (*Node, error) {
	field, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if p.keyword("IN") {
		if !p.symbol("(") {
			return nil, fmt.Errorf("expected ( after IN, found %q", p.peek().text)
		}
		var list []any
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
			if p.symbol(",") {
				continue
			}
			break
		}
		if !p.symbol(")") {
			return nil, fmt.Errorf("expected ) closing IN list, found %q", p.peek().text)
		}
		return Cond(field, OpIn, list), nil
	}

	for _, kw := range []struct {
		name string
		op   Op
	}{{"LIKE", OpLike}, {"MATCH", OpMatch}} {
		if !p.keyword(kw.name) {
			continue
		}
		t := p.peek()
		if t.kind != tokString {
			return nil, fmt.Errorf("expected pattern string after %s, found %q", kw.name, t.text)
		}
		p.next()
		return Cond(field, kw.op, t.text), nil
	}

	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return Cond(field, op, v), nil
}

func (p *parser) parseOp() (Op, error) {
	t := p.peek()
	if t.kind != tokSymbol {
		return OpEq, fmt.Errorf("expected operator, found %q", t.text)
	}
	var op Op
	switch t.text {
	case "=", "==":
		op = OpEq
	case "!=", "<>":
		op = OpNe
	case ">":
		op = OpGt
	case ">=":
		op = OpGte
	case "<":
		op = OpLt
	case "<=":
		op = OpLte
	default:
		return OpEq, fmt.Errorf("unknown operator %q", t.text)
	}
	p.next()
	return op, nil
}

func (p *parser) parseValue() (any, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return t.text, nil
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number literal %q", t.text)
		}
		return f, nil
	case tokIdent:
		switch strings.ToUpper(t.text) {
		case "TRUE":
			p.next()
			return true, nil
		case "FALSE":
			p.next()
			return false, nil
		case "NULL":
			p.next()
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected literal value, found %q", t.text)
}
