package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	d := &Document{
		ID: "u1",
		Data: map[string]any{
			"name":    "Alice",
			"address": map[string]any{"city": "Berlin"},
			"tags":    []any{"a", "b"},
		},
	}

	c := d.Clone()
	c.Data["name"] = "Bob"
	c.Data["address"].(map[string]any)["city"] = "Hamburg"
	c.Data["tags"].([]any)[0] = "z"

	assert.Equal(t, "Alice", d.Data["name"])
	assert.Equal(t, "Berlin", d.Data["address"].(map[string]any)["city"])
	assert.Equal(t, "a", d.Data["tags"].([]any)[0])
}

func TestMerge(t *testing.T) {
	base := map[string]any{"name": "Alice", "age": 20, "city": "Berlin"}
	out := Merge(base, map[string]any{"age": 21, "city": nil})

	assert.Equal(t, "Alice", out["name"])
	assert.Equal(t, 21, out["age"])
	_, ok := out["city"]
	assert.False(t, ok)

	// base untouched
	assert.Equal(t, 20, base["age"])
	assert.Equal(t, "Berlin", base["city"])
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"Name": "Alice",
		"address": map[string]any{
			"city": "Berlin",
		},
	}

	v, ok := Lookup(data, "name")
	require.True(t, ok)
	assert.Equal(t, "Alice", v)

	v, ok = Lookup(data, "address.city")
	require.True(t, ok)
	assert.Equal(t, "Berlin", v)

	_, ok = Lookup(data, "address.zip")
	assert.False(t, ok)

	_, ok = Lookup(data, "name.city")
	assert.False(t, ok)
}

func TestFieldPrefersExactMatch(t *testing.T) {
	obj := map[string]any{"Name": 1, "name": 2}

	v, ok := Field(obj, "name")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	// No exact match: first case-insensitive match in sorted key order.
	v, ok = Field(obj, "NAME")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestWalkDepthGuard(t *testing.T) {
	deep := map[string]any{}
	cur := deep
	for i := 0; i < MaxDepth+2; i++ {
		next := map[string]any{}
		cur["child"] = next
		cur = next
	}

	err := Walk(deep, func(string, any) error { return nil })
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int float cross", 10, 10.0, true},
		{"string case-insensitive", "Alice", "alice", true},
		{"string mismatch", "Alice", "Bob", false},
		{"mixed kinds", "10", 10, false},
		{"bools", true, true, true},
		{"nil both", nil, nil, true},
		{"nil one", nil, 0, false},
		{"arrays", []any{1, "A"}, []any{1.0, "a"}, true},
		{"arrays length", []any{1}, []any{1, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	c, ok := Compare(10, 20.5)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare("bob", "Alice")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = Compare("x", 1)
	assert.False(t, ok)

	_, ok = Compare(map[string]any{}, map[string]any{})
	assert.False(t, ok)
}

func TestKeyStability(t *testing.T) {
	assert.Equal(t, Key(10), Key(10.0))
	assert.Equal(t, Key("Alice"), Key("alice"))
	assert.NotEqual(t, Key("alice"), Key("bob"))
	assert.NotEqual(t, Key(1), Key(true))
	assert.Equal(t, "z", Key(nil))
}

func TestValues(t *testing.T) {
	assert.Equal(t, []any{"a"}, Values("a"))
	assert.Equal(t, []any{"a", 1}, Values([]any{"a", 1, map[string]any{"x": 1}}))
	assert.Nil(t, Values(nil))
	assert.Nil(t, Values(map[string]any{"x": 1}))
}
