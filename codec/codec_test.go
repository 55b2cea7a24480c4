package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestRoundTripCompatibility(t *testing.T) {
	in := map[string]any{
		"name": "Alice",
		"age":  float64(20),
		"tags": []any{"a", "b"},
	}

	// Bytes written by one JSON codec must decode with the other.
	b := MustMarshal(JSON{}, in)

	var out map[string]any
	require.NoError(t, GoJSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
