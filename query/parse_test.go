package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullQuery(t *testing.T) {
	q, err := Parse(`SELECT name, age FROM users WHERE age >= 21 AND city = 'Berlin' ORDER BY age DESC LIMIT 10 OFFSET 5`)
	require.NoError(t, err)

	assert.Equal(t, "users", q.Collection)
	assert.Equal(t, []string{"name", "age"}, q.Projection)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
	require.Len(t, q.Sort, 1)
	assert.Equal(t, SortKey{Field: "age", Desc: true}, q.Sort[0])

	require.Len(t, q.Filter.And, 2)
	assert.Equal(t, &Condition{Field: "age", Op: OpGte, Value: 21.0}, q.Filter.And[0].Cond)
	assert.Equal(t, &Condition{Field: "city", Op: OpEq, Value: "Berlin"}, q.Filter.And[1].Cond)
}

func TestParseStar(t *testing.T) {
	q, err := Parse(`SELECT * FROM users`)
	require.NoError(t, err)
	assert.Empty(t, q.Projection)
	assert.Nil(t, q.Filter)
}

func TestParsePrecedence(t *testing.T) {
	// AND binds tighter than OR: a OR (b AND c).
	q, err := Parse(`SELECT * FROM t WHERE a = 1 OR b = 2 AND c = 3`)
	require.NoError(t, err)

	require.Len(t, q.Filter.Or, 2)
	assert.NotNil(t, q.Filter.Or[0].Cond)
	require.Len(t, q.Filter.Or[1].And, 2)
}

func TestParseParentheses(t *testing.T) {
	q, err := Parse(`SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3`)
	require.NoError(t, err)

	require.Len(t, q.Filter.And, 2)
	assert.Len(t, q.Filter.And[0].Or, 2)
	assert.NotNil(t, q.Filter.And[1].Cond)
}

func TestParseOperators(t *testing.T) {
	tests := []struct {
		text string
		op   Op
	}{
		{"a = 1", OpEq},
		{"a == 1", OpEq},
		{"a != 1", OpNe},
		{"a <> 1", OpNe},
		{"a > 1", OpGt},
		{"a >= 1", OpGte},
		{"a < 1", OpLt},
		{"a <= 1", OpLte},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			q, err := Parse("SELECT * FROM t WHERE " + tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.op, q.Filter.Cond.Op)
		})
	}
}

func TestParseInList(t *testing.T) {
	q, err := Parse(`SELECT * FROM t WHERE city IN ('Berlin', 'Paris')`)
	require.NoError(t, err)
	assert.Equal(t, OpIn, q.Filter.Cond.Op)
	assert.Equal(t, []any{"Berlin", "Paris"}, q.Filter.Cond.Value)
}

func TestParseLikeAndMatch(t *testing.T) {
	q, err := Parse(`SELECT * FROM t WHERE name LIKE '%li%'`)
	require.NoError(t, err)
	assert.Equal(t, &Condition{Field: "name", Op: OpLike, Value: "%li%"}, q.Filter.Cond)

	q, err = Parse(`SELECT * FROM t WHERE bio MATCH 'databases'`)
	require.NoError(t, err)
	assert.Equal(t, &Condition{Field: "bio", Op: OpMatch, Value: "databases"}, q.Filter.Cond)
}

func TestParseLiterals(t *testing.T) {
	q, err := Parse(`SELECT * FROM t WHERE a = true AND b = FALSE AND c = null AND d = -2.5 AND e = "x"`)
	require.NoError(t, err)

	leaves := q.Filter.And
	require.Len(t, leaves, 5)
	assert.Equal(t, true, leaves[0].Cond.Value)
	assert.Equal(t, false, leaves[1].Cond.Value)
	assert.Nil(t, leaves[2].Cond.Value)
	assert.Equal(t, -2.5, leaves[3].Cond.Value)
	assert.Equal(t, "x", leaves[4].Cond.Value)
}

func TestParseQualifiedAndNestedFields(t *testing.T) {
	q, err := Parse(`SELECT users.name FROM users WHERE address.city = 'Berlin'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"users.name"}, q.Projection)
	assert.Equal(t, "address.city", q.Filter.Cond.Field)
}

func TestParseKeywordsCaseInsensitive(t *testing.T) {
	q, err := Parse(`select name from users where age > 1 order by name asc limit 1`)
	require.NoError(t, err)
	assert.Equal(t, "users", q.Collection)
	assert.Equal(t, 1, q.Limit)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"SELECT",
		"SELECT * FROM",
		"SELECT * FROM t WHERE",
		"SELECT * FROM t WHERE a",
		"SELECT * FROM t WHERE a = ",
		"SELECT * FROM t WHERE a LIKE 5",
		"SELECT * FROM t WHERE a IN 1",
		"SELECT * FROM t WHERE (a = 1",
		"SELECT * FROM t LIMIT x",
		"SELECT * FROM t WHERE name = 'unterminated",
		"SELECT * FROM t garbage",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			assert.Error(t, err)
		})
	}
}
