package schema

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderSchema() *Definition {
	return &Definition{
		ID:   "db://core/app/schemas/v1/order",
		Type: "object",
		Properties: map[string]*Definition{
			"id": {
				Type: "string",
				XCompute: &ComputeSpec{
					Engine: "plan/v1",
					Update: "if_missing",
					Plan:   map[string]any{"op": "uuid_v4"},
				},
			},
			"createdAt": {
				Type: "string",
				XCompute: &ComputeSpec{
					Update: "if_missing",
					Plan:   map[string]any{"op": "now_rfc3339"},
				},
			},
			"currency": {Type: "string", Default: "EUR"},
			"items": {
				Type: "array",
				Items: &Definition{
					Type: "object",
					Properties: map[string]*Definition{
						"price": {Type: "number"},
						"qty":   {Type: "number"},
						"total": {
							Type: "number",
							XCompute: &ComputeSpec{
								Scope: "self",
								Plan: map[string]any{
									"op":   "mul",
									"args": []any{"#/price", "#/qty"},
								},
							},
						},
					},
				},
			},
			"subtotal": {
				Type: "number",
				XCompute: &ComputeSpec{
					Plan: map[string]any{
						"op":   "sum",
						"from": "#/items",
						"path": "total",
					},
				},
			},
			"total": {
				Type: "number",
				XCompute: &ComputeSpec{
					Plan: map[string]any{
						"op":    "round",
						"value": map[string]any{"op": "mul", "args": []any{"#/subtotal", 1.19}},
						"scale": 2,
					},
				},
			},
		},
	}
}

func TestComputeDerivedOrderFields(t *testing.T) {
	c := NewComputer(orderSchema())
	require.NotNil(t, c)

	data := map[string]any{
		"items": []any{
			map[string]any{"price": 10.0, "qty": 2.0},
			map[string]any{"price": 2.5, "qty": 4.0},
		},
	}
	c.Apply(data)

	// Generated identity and timestamp.
	id, _ := data["id"].(string)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "id is a generated uuid: %v", data["id"])
	ts, _ := data["createdAt"].(string)
	_, err = time.Parse(time.RFC3339, ts)
	assert.NoError(t, err, "createdAt is rfc3339: %v", data["createdAt"])

	// Default insertion.
	assert.Equal(t, "EUR", data["currency"])

	// Per-element products, then the sum over them, then the taxed total:
	// three dependent plans converging across passes.
	items := data["items"].([]any)
	assert.Equal(t, 20.0, items[0].(map[string]any)["total"])
	assert.Equal(t, 10.0, items[1].(map[string]any)["total"])
	assert.Equal(t, 30.0, data["subtotal"])
	assert.Equal(t, 35.7, data["total"])
}

func TestComputeUpdatePolicies(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/policies",
		Type: "object",
		Properties: map[string]*Definition{
			"id": {XCompute: &ComputeSpec{
				Update: "if_missing",
				Plan:   map[string]any{"op": "uuid_v4"},
			}},
			"note": {XCompute: &ComputeSpec{
				Update: "if_null",
				Plan:   "filled",
			}},
			"score": {XCompute: &ComputeSpec{
				Plan: map[string]any{"op": "add", "args": []any{"#/base", 1}},
			}},
		},
	}
	c := NewComputer(def)
	require.NotNil(t, c)

	data := map[string]any{
		"id":    "keep-me",
		"note":  nil,
		"score": 99.0,
		"base":  4.0,
	}
	c.Apply(data)

	assert.Equal(t, "keep-me", data["id"], "if_missing keeps present values")
	assert.Equal(t, "filled", data["note"], "if_null replaces explicit null")
	assert.Equal(t, 5.0, data["score"], "always overwrites stale derived values")
}

func TestComputeRecomputesPlaceholders(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/seeded",
		Type: "object",
		Properties: map[string]*Definition{
			"id": {XCompute: &ComputeSpec{
				Update: "if_missing",
				Plan:   map[string]any{"op": "uuid_v4"},
			}},
			"createdAt": {XCompute: &ComputeSpec{
				Update: "if_missing",
				Plan:   map[string]any{"op": "now_rfc3339"},
			}},
		},
	}
	c := NewComputer(def)

	data := map[string]any{
		"id":        "00000000-0000-0000-0000-000000000000",
		"createdAt": "1970-01-01T00:00:00Z",
	}
	c.Apply(data)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", data["id"])
	assert.NotEqual(t, "1970-01-01T00:00:00Z", data["createdAt"])
}

func TestComputeNullPropagation(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/holes",
		Type: "object",
		Properties: map[string]*Definition{
			"sum": {XCompute: &ComputeSpec{
				Plan: map[string]any{"op": "add", "args": []any{"#/a", "#/missing"}},
			}},
			"ratio": {XCompute: &ComputeSpec{
				Plan: map[string]any{"op": "div", "args": []any{"#/a", 0}},
			}},
		},
	}
	c := NewComputer(def)

	data := map[string]any{"a": 3.0}
	c.Apply(data)

	v, ok := data["sum"]
	assert.True(t, ok)
	assert.Nil(t, v, "missing operand yields null, not an error")
	assert.Nil(t, data["ratio"], "division by zero yields null")
}

func TestComputeConditionals(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/flags",
		Type: "object",
		Properties: map[string]*Definition{
			"tier": {XCompute: &ComputeSpec{
				Plan: map[string]any{
					"op":   "cond",
					"if":   map[string]any{"op": "ge", "args": []any{"#/spend", 100}},
					"then": "gold",
					"else": "basic",
				},
			}},
			"eligible": {XCompute: &ComputeSpec{
				Plan: map[string]any{
					"op": "and",
					"args": []any{
						map[string]any{"op": "gt", "args": []any{"#/spend", 0}},
						map[string]any{"op": "not", "value": "#/banned"},
					},
				},
			}},
		},
	}
	c := NewComputer(def)

	data := map[string]any{"spend": 150.0, "banned": false}
	c.Apply(data)
	assert.Equal(t, "gold", data["tier"])
	assert.Equal(t, true, data["eligible"])

	data = map[string]any{"spend": 20.0, "banned": true}
	c.Apply(data)
	assert.Equal(t, "basic", data["tier"])
	assert.Equal(t, false, data["eligible"])
}

func TestComputeSumWithFilter(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/filtered",
		Type: "object",
		Properties: map[string]*Definition{
			"paidTotal": {XCompute: &ComputeSpec{
				Plan: map[string]any{
					"op":    "sum",
					"from":  "#/invoices",
					"path":  "amount",
					"where": map[string]any{"ptr": "status", "op": "eq", "value": "paid"},
					"scale": 2,
				},
			}},
		},
	}
	c := NewComputer(def)

	data := map[string]any{
		"invoices": []any{
			map[string]any{"amount": 10.25, "status": "paid"},
			map[string]any{"amount": 99.0, "status": "open"},
			map[string]any{"amount": 4.25, "status": "paid"},
		},
	}
	c.Apply(data)
	assert.Equal(t, 14.5, data["paidTotal"])
}

func TestComputeUnknownEngineIgnored(t *testing.T) {
	def := &Definition{
		ID:   "db://core/app/schemas/v1/future",
		Type: "object",
		Properties: map[string]*Definition{
			"x": {XCompute: &ComputeSpec{
				Engine: "plan/v2",
				Plan:   map[string]any{"op": "uuid_v4"},
			}},
		},
	}
	c := NewComputer(def)
	require.NotNil(t, c)

	data := map[string]any{}
	c.Apply(data)
	_, ok := data["x"]
	assert.False(t, ok, "unrecognized engines leave the field alone")
}

func TestNewComputerNilForPlainSchemas(t *testing.T) {
	assert.Nil(t, NewComputer(userSchema()))
	assert.Nil(t, NewComputer(nil))
}
