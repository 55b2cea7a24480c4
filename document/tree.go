package document

import (
	"fmt"
	"sort"
	"strings"
)

// MaxDepth bounds recursive tree traversal. Documents deeper than this are
// rejected rather than risking unbounded recursion on cyclic input.
const MaxDepth = 64

// ErrTooDeep is returned by Walk when the tree exceeds MaxDepth.
var ErrTooDeep = fmt.Errorf("document tree exceeds max depth %d", MaxDepth)

// Lookup returns the value at a dot-separated path, descending into nested
// objects. Path segments are matched case-insensitively.
func Lookup(data map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = data
	for _, seg := range segments {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := Field(obj, seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// LookupDeep resolves path like Lookup, falling back one level into nested
// sub-objects when the path is absent at the root. Sub-objects are tried in
// sorted key order and the first hit wins, so resolution is deterministic.
func LookupDeep(data map[string]any, path string) (any, bool) {
	if v, ok := Lookup(data, path); ok {
		return v, true
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sub, ok := data[k].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := Lookup(sub, path); ok {
			return v, true
		}
	}
	return nil, false
}

// Field returns the value for a single field name. An exact match wins;
// otherwise the first case-insensitive match in sorted key order is used, so
// resolution is deterministic.
func Field(obj map[string]any, name string) (any, bool) {
	if v, ok := obj[name]; ok {
		return v, true
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return obj[keys[0]], true
}

// Walk visits every node of the tree in depth-first order. Object keys are
// visited in sorted order so traversal is deterministic. The visited path
// uses dot notation; array elements are not path-addressable and are visited
// with their parent's path.
func Walk(v any, fn func(path string, v any) error) error {
	return walk("", v, fn, 0)
}

func walk(path string, v any, fn func(path string, v any) error, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if err := fn(path, v); err != nil {
		return err
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if err := walk(child, t[k], fn, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := walk(path, e, fn, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
