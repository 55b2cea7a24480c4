package schema

import (
	"fmt"
	"regexp"

	"github.com/hupe1980/docgo/document"
)

type kind uint8

const (
	kindAny kind = iota
	kindObject
	kindArray
	kindString
	kindNumber
	kindInteger
	kindBoolean
	kindNull
)

func kindOf(typeName string) (kind, error) {
	switch typeName {
	case "":
		return kindAny, nil
	case "object":
		return kindObject, nil
	case "array":
		return kindArray, nil
	case "string":
		return kindString, nil
	case "number":
		return kindNumber, nil
	case "integer":
		return kindInteger, nil
	case "boolean":
		return kindBoolean, nil
	case "null":
		return kindNull, nil
	default:
		return kindAny, fmt.Errorf("unknown type %q", typeName)
	}
}

func (k kind) String() string {
	switch k {
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindInteger:
		return "integer"
	case kindBoolean:
		return "boolean"
	case kindNull:
		return "null"
	default:
		return "any"
	}
}

// node is a compiled schema node with all references resolved to pointers.
type node struct {
	kind         kind
	required     []string
	props        map[string]*node
	patternProps []patternProp
	closed       bool
	items        *node
	valuePattern *regexp.Regexp
}

type patternProp struct {
	re   *regexp.Regexp
	node *node
}

type compiler struct {
	registry *Registry
	visited  map[*Definition]*node
}

// compile turns a definition into a node graph. Cyclic references are legal:
// the node is registered in visited before its children are compiled, so a
// cycle resolves to the already-allocated node.
func (c *compiler) compile(doc, def *Definition) (*node, error) {
	if def.Ref != "" {
		target, targetDoc, err := c.registry.resolveRef(doc, def.Ref)
		if err != nil {
			return nil, err
		}
		return c.compile(targetDoc, target)
	}
	if n, ok := c.visited[def]; ok {
		return n, nil
	}

	k, err := kindOf(def.Type)
	if err != nil {
		return nil, err
	}
	n := &node{
		kind:     k,
		required: def.Required,
		closed:   def.AdditionalProperties != nil && !*def.AdditionalProperties,
	}
	c.visited[def] = n

	if def.Pattern != "" {
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", def.Pattern, err)
		}
		n.valuePattern = re
	}
	if len(def.Properties) > 0 {
		n.props = make(map[string]*node, len(def.Properties))
		for name, sub := range def.Properties {
			child, err := c.compile(doc, sub)
			if err != nil {
				return nil, err
			}
			n.props[name] = child
		}
	}
	for pattern, sub := range def.PatternProperties {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid property pattern %q: %w", pattern, err)
		}
		child, err := c.compile(doc, sub)
		if err != nil {
			return nil, err
		}
		n.patternProps = append(n.patternProps, patternProp{re: re, node: child})
	}
	if def.Items != nil {
		child, err := c.compile(doc, def.Items)
		if err != nil {
			return nil, err
		}
		n.items = child
	}
	return n, nil
}

// Validator checks document trees against one compiled schema.
// Validators are immutable and safe for concurrent use.
type Validator struct {
	uri  string
	root *node
}

// URI returns the schema URI this validator was compiled from.
func (v *Validator) URI() string { return v.uri }

// Validate checks data against the schema and returns every violation found.
// An empty result means the document is structurally valid.
func (v *Validator) Validate(data map[string]any) []Violation {
	var out []Violation
	validateNode(v.root, "", data, &out, 0)
	return out
}

func validateNode(n *node, path string, value any, out *[]Violation, depth int) {
	if depth > document.MaxDepth {
		*out = append(*out, Violation{Path: path, Rule: "type", Want: "bounded depth", Got: "tree too deep"})
		return
	}

	actual := valueKind(value)
	if !kindMatches(n.kind, actual, value) {
		*out = append(*out, Violation{Path: path, Rule: "type", Want: n.kind.String(), Got: actual.String()})
		return
	}

	switch actual {
	case kindObject:
		obj := value.(map[string]any)
		for _, req := range n.required {
			if _, ok := obj[req]; !ok {
				*out = append(*out, Violation{Path: path, Rule: "required", Want: req})
			}
		}
		for name, val := range obj {
			child := childPath(path, name)
			sub, ok := n.props[name]
			if !ok {
				for _, pp := range n.patternProps {
					if pp.re.MatchString(name) {
						sub = pp.node
						ok = true
						break
					}
				}
			}
			if !ok {
				if n.closed {
					*out = append(*out, Violation{Path: path, Rule: "additionalProperties", Got: name})
				}
				continue
			}
			validateNode(sub, child, val, out, depth+1)
		}
	case kindArray:
		if n.items != nil {
			arr := value.([]any)
			for i, elem := range arr {
				validateNode(n.items, fmt.Sprintf("%s[%d]", path, i), elem, out, depth+1)
			}
		}
	case kindString:
		if n.valuePattern != nil {
			s := value.(string)
			if !n.valuePattern.MatchString(s) {
				*out = append(*out, Violation{Path: path, Rule: "pattern", Want: n.valuePattern.String(), Got: s})
			}
		}
	}
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func valueKind(v any) kind {
	switch v.(type) {
	case nil:
		return kindNull
	case map[string]any:
		return kindObject
	case []any:
		return kindArray
	case string:
		return kindString
	case bool:
		return kindBoolean
	default:
		if _, ok := document.AsFloat(v); ok {
			return kindNumber
		}
		return kindAny
	}
}

func kindMatches(want, actual kind, value any) bool {
	switch want {
	case kindAny:
		return true
	case kindInteger:
		if actual != kindNumber {
			return false
		}
		f, _ := document.AsFloat(value)
		return f == float64(int64(f))
	default:
		return want == actual
	}
}
