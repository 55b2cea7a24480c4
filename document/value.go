package document

import (
	"math"
	"strconv"
	"strings"
)

// Scalar comparison semantics shared by the index and query layers.
//
// Numbers compare numerically across int/float representations. Strings
// compare case-insensitively: the engine's query contract makes string
// equality and ordering case-insensitive, and the index layer folds case in
// its canonical keys so an index lookup and a full scan always agree.

// AsFloat reports v as a float64 if it is any numeric type.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}

// AsString reports v as a string if it is one.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Equal compares two scalars for equality. Numbers compare across
// representations; strings compare case-insensitively. Values of different
// kinds are never equal. Arrays compare element-wise.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := AsFloat(a); ok {
		fb, ok := AsFloat(b)
		return ok && fa == fb
	}
	if sa, ok := AsString(a); ok {
		sb, ok := AsString(b)
		return ok && strings.EqualFold(sa, sb)
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	if aa, ok := a.([]any); ok {
		ab, ok := b.([]any)
		if !ok || len(aa) != len(ab) {
			return false
		}
		for i := range aa {
			if !Equal(aa[i], ab[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two scalars: -1, 0 or 1. ok is false when the values are
// not comparable (mixed kinds, objects, arrays).
func Compare(a, b any) (int, bool) {
	if fa, aok := AsFloat(a); aok {
		if fb, bok := AsFloat(b); bok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if sa, aok := AsString(a); aok {
		if sb, bok := AsString(b); bok {
			return strings.Compare(strings.ToLower(sa), strings.ToLower(sb)), true
		}
		return 0, false
	}
	if ba, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ba && bb:
				return -1, true
			case ba && !bb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	return 0, false
}

// Key returns a stable canonical string for a scalar, for use as an
// exact-index map key. It must remain stable across versions: persisted index
// files rely on it. Strings are case-folded so indexed equality matches the
// engine's case-insensitive scan semantics; numbers collapse to their float64
// bit pattern so 10 and 10.0 share a key.
func Key(v any) string {
	if v == nil {
		return "z"
	}
	if f, ok := AsFloat(v); ok {
		return "n:" + strconv.FormatUint(math.Float64bits(f), 16)
	}
	if s, ok := AsString(v); ok {
		return "s:" + strings.ToLower(s)
	}
	if b, ok := v.(bool); ok {
		if b {
			return "b:1"
		}
		return "b:0"
	}
	return "x"
}

// Values flattens a field value for indexing: arrays yield one value per
// element, anything else yields itself. Nested objects are not indexable and
// yield nothing.
func Values(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			switch e.(type) {
			case map[string]any, []any:
				continue
			default:
				out = append(out, e)
			}
		}
		return out
	case map[string]any:
		return nil
	default:
		return []any{v}
	}
}
