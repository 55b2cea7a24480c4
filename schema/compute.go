package schema

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ComputeSpec declares a derived field. The plan is a small expression tree
// evaluated against the document on every write, before validation.
type ComputeSpec struct {
	// Engine names the plan dialect. Only "plan/v1" is recognized; specs with
	// another engine are ignored.
	Engine string `yaml:"engine,omitempty" json:"engine,omitempty"`

	// Scope selects the base for pointer operands: "root" (default) resolves
	// against the whole document, "self" against the enclosing object first,
	// falling back to the root.
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// Update is "always" (default), "if_missing" or "if_null". if_missing
	// also recomputes generator placeholders (the zero UUID, the epoch
	// timestamp) so seeded fixtures pick up real values.
	Update string `yaml:"update,omitempty" json:"update,omitempty"`

	// Plan is the expression: a literal, a "#/" pointer into the document, or
	// a map with an "op" key. See eval for the operation set.
	Plan any `yaml:"plan" json:"plan"`
}

const (
	computeEngine    = "plan/v1"
	maxComputePasses = 4

	placeholderUUID = "00000000-0000-0000-0000-000000000000"
	placeholderTime = "1970-01-01T00:00:00Z"
)

// Computer applies the compute annotations of one schema to a document:
// defaults for missing fields, then every x_compute plan. Plans may read
// fields produced by other plans, so application repeats until no value
// changes, capped at maxComputePasses. Generator plans (uuid_v4, now_*) under
// "always" run once per Apply.
type Computer struct {
	root *Definition
}

// NewComputer builds a Computer for def. Returns nil when the schema carries
// no compute annotation and no default, so callers can skip the pass.
func NewComputer(def *Definition) *Computer {
	if def == nil || !hasCompute(def, make(map[*Definition]bool)) {
		return nil
	}
	return &Computer{root: def}
}

func hasCompute(def *Definition, visited map[*Definition]bool) bool {
	if def == nil || visited[def] {
		return false
	}
	visited[def] = true
	if def.XCompute != nil || def.Default != nil {
		return true
	}
	for _, sub := range def.Properties {
		if hasCompute(sub, visited) {
			return true
		}
	}
	if hasCompute(def.Items, visited) {
		return true
	}
	if name, ok := strings.CutPrefix(def.Ref, "#/definitions/"); ok {
		return hasCompute(def.Definitions[name], visited)
	}
	return false
}

// Apply evaluates defaults and computed fields in place.
func (c *Computer) Apply(data map[string]any) {
	if data == nil {
		return
	}
	done := make(map[string]bool)
	for pass := 0; pass < maxComputePasses; pass++ {
		w := &computeWalk{doc: c.root, data: data, done: done}
		if !w.object(c.root, data, "") {
			return
		}
	}
}

// computeWalk carries the per-Apply state of one pass.
type computeWalk struct {
	doc  *Definition
	data map[string]any
	// done marks generator fields already produced in this Apply, keyed by
	// document path. Re-running them would produce a fresh value every pass
	// and never converge.
	done map[string]bool
}

func (w *computeWalk) object(def *Definition, obj map[string]any, path string) bool {
	def = w.deref(def)
	if def == nil {
		return false
	}
	changed := false
	for name, sub := range def.Properties {
		sub = w.deref(sub)
		if sub == nil {
			continue
		}
		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}
		if sub.XCompute != nil {
			if w.compute(sub.XCompute, obj, name, fieldPath) {
				changed = true
			}
		} else if _, ok := obj[name]; !ok && sub.Default != nil {
			obj[name] = cloneValue(sub.Default)
			changed = true
		}
		switch v := obj[name].(type) {
		case map[string]any:
			if w.object(sub, v, fieldPath) {
				changed = true
			}
		case []any:
			if sub.Items == nil {
				continue
			}
			for _, el := range v {
				if m, ok := el.(map[string]any); ok {
					if w.object(sub.Items, m, fieldPath+"[]") {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

func (w *computeWalk) deref(def *Definition) *Definition {
	for hops := 0; def != nil && def.Ref != ""; hops++ {
		if hops > 8 {
			return nil
		}
		name, ok := strings.CutPrefix(def.Ref, "#/definitions/")
		if !ok {
			return def
		}
		def = w.doc.Definitions[name]
	}
	return def
}

func (w *computeWalk) compute(spec *ComputeSpec, obj map[string]any, name, path string) bool {
	if spec.Engine != "" && spec.Engine != computeEngine {
		return false
	}
	cur, present := obj[name]
	switch spec.Update {
	case "if_null":
		if present && cur != nil {
			return false
		}
	case "if_missing":
		if present && !isPlaceholder(spec.Plan, cur) {
			return false
		}
	}
	if w.done[path] {
		return false
	}
	env := computeEnv{root: w.data, self: obj, selfScope: spec.Scope == "self"}
	next := eval(spec.Plan, env)
	if isGenerator(spec.Plan) {
		w.done[path] = true
	}
	if present && reflect.DeepEqual(cur, next) {
		return false
	}
	obj[name] = next
	return true
}

// planOp returns the operation name of a plan node, or "" for literals and
// pointers.
func planOp(plan any) string {
	m, ok := plan.(map[string]any)
	if !ok {
		return ""
	}
	op, _ := m["op"].(string)
	return op
}

func isGenerator(plan any) bool {
	switch planOp(plan) {
	case "uuid_v4", "now_rfc3339", "now_ts_ms":
		return true
	}
	return false
}

// isPlaceholder reports whether a present value is the well-known seed value
// of the plan's generator, which if_missing treats like an absent field.
func isPlaceholder(plan any, v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch planOp(plan) {
	case "uuid_v4":
		return s == placeholderUUID
	case "now_rfc3339":
		return s == placeholderTime
	}
	return false
}

type computeEnv struct {
	root      map[string]any
	self      map[string]any
	selfScope bool
}

// eval evaluates one plan node. Operands are literals, "#/" pointers, or
// nested op maps. Arithmetic propagates null: any null operand makes the
// result null rather than an error, so partially filled documents compute to
// holes instead of failing the write.
func eval(plan any, env computeEnv) any {
	switch p := plan.(type) {
	case string:
		if strings.HasPrefix(p, "#/") {
			return env.resolve(p)
		}
		return p
	case map[string]any:
		if op, ok := p["op"].(string); ok {
			return evalOp(op, p, env)
		}
		return p
	default:
		return plan
	}
}

func evalOp(op string, m map[string]any, env computeEnv) any {
	switch op {
	case "uuid_v4":
		return uuid.NewString()
	case "now_rfc3339":
		return time.Now().UTC().Format(time.RFC3339)
	case "now_ts_ms":
		return float64(time.Now().UnixMilli())
	case "add", "sub", "mul", "div":
		return evalArith(op, m, env)
	case "round":
		v, ok := toFloat(eval(m["value"], env))
		if !ok {
			return nil
		}
		return roundTo(v, scaleOf(m, env))
	case "sum":
		return evalSum(m, env)
	case "cond":
		if truthy(eval(m["if"], env)) {
			return eval(m["then"], env)
		}
		return eval(m["else"], env)
	case "and":
		for _, a := range args(m) {
			if !truthy(eval(a, env)) {
				return false
			}
		}
		return true
	case "or":
		for _, a := range args(m) {
			if truthy(eval(a, env)) {
				return true
			}
		}
		return false
	case "not":
		return !truthy(eval(m["value"], env))
	case "lt", "le", "gt", "ge", "eq", "ne":
		return evalCompare(op, m, env)
	default:
		return nil
	}
}

func args(m map[string]any) []any {
	a, _ := m["args"].([]any)
	return a
}

func evalArith(op string, m map[string]any, env computeEnv) any {
	operands := args(m)
	if len(operands) == 0 {
		return nil
	}
	acc, ok := toFloat(eval(operands[0], env))
	if !ok {
		return nil
	}
	for _, a := range operands[1:] {
		v, ok := toFloat(eval(a, env))
		if !ok {
			return nil
		}
		switch op {
		case "add":
			acc += v
		case "sub":
			acc -= v
		case "mul":
			acc *= v
		case "div":
			if v == 0 {
				return nil
			}
			acc /= v
		}
	}
	return acc
}

// evalSum folds a numeric field over the elements of an array: "from" points
// at the array, "path" names the field inside each element, an optional
// "where" clause {ptr, op, value} filters elements and "scale" rounds the
// total.
func evalSum(m map[string]any, env computeEnv) any {
	from, _ := eval(m["from"], env).([]any)
	pathKey, _ := m["path"].(string)
	where, _ := m["where"].(map[string]any)

	total := 0.0
	for _, el := range from {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if where != nil && !matchWhere(where, obj, env) {
			continue
		}
		v, ok := toFloat(lookupKey(obj, pathKey))
		if !ok {
			continue
		}
		total += v
	}
	if _, ok := m["scale"]; ok {
		return roundTo(total, scaleOf(m, env))
	}
	return total
}

func matchWhere(where, el map[string]any, env computeEnv) bool {
	ptr, _ := where["ptr"].(string)
	op, _ := where["op"].(string)
	want := eval(where["value"], env)
	got := lookupKey(el, ptr)
	switch op {
	case "eq", "":
		return reflect.DeepEqual(got, want)
	case "ne":
		return !reflect.DeepEqual(got, want)
	case "lt", "le", "gt", "ge":
		a, aok := toFloat(got)
		b, bok := toFloat(want)
		if !aok || !bok {
			return false
		}
		return compareFloats(op, a, b)
	default:
		return false
	}
}

func evalCompare(op string, m map[string]any, env computeEnv) any {
	operands := args(m)
	if len(operands) != 2 {
		return nil
	}
	a := eval(operands[0], env)
	b := eval(operands[1], env)
	switch op {
	case "eq":
		return reflect.DeepEqual(a, b)
	case "ne":
		return !reflect.DeepEqual(a, b)
	}
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if !aok || !bok {
		return nil
	}
	return compareFloats(op, fa, fb)
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case "lt":
		return a < b
	case "le":
		return a <= b
	case "gt":
		return a > b
	case "ge":
		return a >= b
	}
	return false
}

// resolve follows a "#/a/b" pointer. Under self scope the enclosing object is
// tried first, the root second, so element-local fields shadow document
// fields.
func (env computeEnv) resolve(ptr string) any {
	if env.selfScope {
		if v, ok := lookupPointer(env.self, ptr); ok {
			return v
		}
	}
	v, _ := lookupPointer(env.root, ptr)
	return v
}

func lookupPointer(obj map[string]any, ptr string) (any, bool) {
	rest, ok := strings.CutPrefix(ptr, "#/")
	if !ok || obj == nil {
		return nil, false
	}
	var cur any = obj
	for _, seg := range strings.Split(rest, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// lookupKey reads a field of an array element: either a plain key or a "#/"
// pointer into the element.
func lookupKey(el map[string]any, key string) any {
	if strings.HasPrefix(key, "#/") {
		v, _ := lookupPointer(el, key)
		return v
	}
	return el[key]
}

func scaleOf(m map[string]any, env computeEnv) int {
	s, ok := toFloat(eval(m["scale"], env))
	if !ok {
		return 0
	}
	return int(s)
}

func roundTo(v float64, scale int) float64 {
	pow := math.Pow(10, float64(scale))
	return math.Round(v*pow) / pow
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
