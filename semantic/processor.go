package semantic

import (
	"sort"
	"strings"

	"github.com/hupe1980/docgo/document"
)

// Processor expands and compacts document trees against a context and checks
// declared types against a vocabulary.
type Processor struct {
	vocab      *Vocabulary
	defaultCtx Context
}

// NewProcessor creates a processor. A nil vocabulary falls back to the
// built-in one; a nil context falls back to DefaultContext.
func NewProcessor(vocab *Vocabulary, defaultCtx Context) *Processor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if defaultCtx == nil {
		defaultCtx = DefaultContext()
	}
	return &Processor{vocab: vocab, defaultCtx: defaultCtx}
}

// Vocabulary returns the processor's compiled vocabulary.
func (p *Processor) Vocabulary() *Vocabulary { return p.vocab }

// EnsureContext returns data with the default context added when no
// "@context" key is present. The input is not mutated.
func (p *Processor) EnsureContext(data map[string]any) map[string]any {
	if _, ok := data[ContextKey]; ok {
		return data
	}
	out := document.CloneData(data)
	if out == nil {
		out = make(map[string]any, 1)
	}
	ctx := make(map[string]any, len(p.defaultCtx))
	for prefix, base := range p.defaultCtx {
		ctx[prefix] = base
	}
	out[ContextKey] = ctx
	return out
}

// Expand returns a copy of data with every prefixed key and declared type
// resolved to its absolute identifier. The document's own "@context" (if
// present) is merged over the processor default.
func (p *Processor) Expand(data map[string]any) map[string]any {
	ctx := p.effectiveContext(data)
	out := expandValue(data, ctx, 0)
	m, _ := out.(map[string]any)
	delete(m, ContextKey)
	return m
}

// Compact is the inverse of Expand: absolute identifiers whose base appears
// in ctx are rewritten to prefix form. Longest matching base wins.
func (p *Processor) Compact(data map[string]any, ctx Context) map[string]any {
	if ctx == nil {
		ctx = p.defaultCtx
	}
	out := compactValue(data, ctx, 0)
	m, _ := out.(map[string]any)
	return m
}

// CheckTypes verifies that every declared "@type" (after expansion) exists in
// the vocabulary. In Strict mode the first unknown type is returned as an
// *UnknownTypeError; in Permissive mode unknown types are returned as
// warnings and the error is nil.
func (p *Processor) CheckTypes(data map[string]any, mode Mode) ([]string, error) {
	ctx := p.effectiveContext(data)
	var warnings []string
	var firstErr error

	check := func(name string) {
		expanded := expandName(name, ctx)
		if _, ok := p.vocab.Lookup(expanded); ok {
			return
		}
		if mode == Strict {
			if firstErr == nil {
				firstErr = &UnknownTypeError{Type: expanded}
			}
			return
		}
		warnings = append(warnings, expanded)
	}

	err := document.Walk(data, func(path string, v any) error {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		declared, ok := obj[TypeKey]
		if !ok {
			return nil
		}
		switch t := declared.(type) {
		case string:
			check(t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok {
					check(s)
				}
			}
		}
		return nil
	})
	if err != nil {
		return warnings, err
	}
	return warnings, firstErr
}

// effectiveContext merges the document's embedded "@context" over the default.
func (p *Processor) effectiveContext(data map[string]any) Context {
	ctx := p.defaultCtx.Clone()
	raw, ok := data[ContextKey]
	if !ok {
		return ctx
	}
	if m, ok := raw.(map[string]any); ok {
		for prefix, base := range m {
			if s, ok := base.(string); ok {
				ctx[prefix] = s
			}
		}
	}
	return ctx
}

func expandName(name string, ctx Context) string {
	prefix, rest, ok := strings.Cut(name, ":")
	if !ok || rest == "" || strings.HasPrefix(rest, "//") {
		// Absolute identifiers ("https://...") pass through unchanged.
		return name
	}
	base, ok := ctx[prefix]
	if !ok {
		return name
	}
	return base + rest
}

func compactName(name string, ctx Context) string {
	bestPrefix, bestBase := "", ""
	for prefix, base := range ctx {
		if strings.HasPrefix(name, base) && len(base) > len(bestBase) {
			bestPrefix, bestBase = prefix, base
		} else if len(base) == len(bestBase) && strings.HasPrefix(name, base) && prefix < bestPrefix {
			bestPrefix = prefix
		}
	}
	if bestBase == "" || len(name) == len(bestBase) {
		return name
	}
	return bestPrefix + ":" + name[len(bestBase):]
}

func expandValue(v any, ctx Context, depth int) any {
	if depth > document.MaxDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if !strings.HasPrefix(k, "@") {
				key = expandName(k, ctx)
			}
			val := t[k]
			if k == TypeKey {
				val = expandTypeValue(val, ctx)
			} else {
				val = expandValue(val, ctx, depth+1)
			}
			out[key] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = expandValue(e, ctx, depth+1)
		}
		return out
	default:
		return v
	}
}

func expandTypeValue(v any, ctx Context) any {
	switch t := v.(type) {
	case string:
		return expandName(t, ctx)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			if s, ok := e.(string); ok {
				out[i] = expandName(s, ctx)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return v
	}
}

func compactValue(v any, ctx Context, depth int) any {
	if depth > document.MaxDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key := k
			if !strings.HasPrefix(k, "@") {
				key = compactName(k, ctx)
			}
			if k == TypeKey {
				val = compactTypeValue(val, ctx)
			} else {
				val = compactValue(val, ctx, depth+1)
			}
			out[key] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = compactValue(e, ctx, depth+1)
		}
		return out
	default:
		return v
	}
}

func compactTypeValue(v any, ctx Context) any {
	switch t := v.(type) {
	case string:
		return compactName(t, ctx)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			if s, ok := e.(string); ok {
				out[i] = compactName(s, ctx)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return v
	}
}
