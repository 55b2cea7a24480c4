package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docgo/internal/fs"
)

func boolPtr(b bool) *bool { return &b }

func userSchema() *Definition {
	return &Definition{
		ID:       "db://core/app/schemas/v1/user",
		Type:     "object",
		Required: []string{"name", "age"},
		Properties: map[string]*Definition{
			"name": {Type: "string"},
			"age":  {Type: "integer"},
			"email": {
				Type:    "string",
				Pattern: `^[^@]+@[^@]+$`,
			},
			"address": {Ref: "#/definitions/address"},
			"tags":    {Type: "array", Items: &Definition{Type: "string"}},
		},
		PatternProperties: map[string]*Definition{
			"^x-": {Type: "string"},
		},
		AdditionalProperties: boolPtr(false),
		Definitions: map[string]*Definition{
			"address": {
				Type:     "object",
				Required: []string{"city"},
				Properties: map[string]*Definition{
					"city": {Type: "string"},
					"zip":  {Type: "string"},
				},
			},
		},
	}
}

func compileUser(t *testing.T) *Validator {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(userSchema()))
	v, err := r.Compile("db://core/app/schemas/v1/user")
	require.NoError(t, err)
	return v
}

func TestValidateOK(t *testing.T) {
	v := compileUser(t)

	violations := v.Validate(map[string]any{
		"name":    "Alice",
		"age":     20,
		"email":   "alice@example.com",
		"address": map[string]any{"city": "Berlin", "zip": "10115"},
		"tags":    []any{"admin", "ops"},
		"x-note":  "dynamic",
	})
	assert.Empty(t, violations)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := compileUser(t)

	violations := v.Validate(map[string]any{
		"age":     20.5,              // not integral
		"email":   "not-an-email",    // pattern
		"address": map[string]any{},  // missing city
		"extra":   1,                 // closed object
		"tags":    []any{"ok", 1},    // item type
	})

	rules := map[string]int{}
	for _, vi := range violations {
		rules[vi.Rule]++
	}
	// root missing name, address missing city
	assert.Equal(t, 2, rules["required"], "%v", violations)
	assert.Equal(t, 1, rules["pattern"], "%v", violations)
	assert.Equal(t, 1, rules["additionalProperties"], "%v", violations)
	// age not integral, tags[1] not string
	assert.GreaterOrEqual(t, rules["type"], 2, "%v", violations)
	assert.GreaterOrEqual(t, len(violations), 6)
}

func TestValidateTypeMismatchStopsDescent(t *testing.T) {
	v := compileUser(t)

	violations := v.Validate(map[string]any{
		"name":    "Alice",
		"age":     21,
		"address": "not an object",
	})
	require.Len(t, violations, 1)
	assert.Equal(t, "type", violations[0].Rule)
	assert.Equal(t, "address", violations[0].Path)
}

func TestCrossSchemaRef(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{
		ID:       "db://core/app/schemas/v1/address",
		Type:     "object",
		Required: []string{"city"},
		Properties: map[string]*Definition{
			"city": {Type: "string"},
		},
	}))
	require.NoError(t, r.Register(&Definition{
		ID:       "db://core/app/schemas/v1/company",
		Type:     "object",
		Required: []string{"hq"},
		Properties: map[string]*Definition{
			"hq": {Ref: "db://core/app/schemas/v1/address"},
		},
	}))

	v, err := r.Compile("db://core/app/schemas/v1/company")
	require.NoError(t, err)

	assert.Empty(t, v.Validate(map[string]any{"hq": map[string]any{"city": "Berlin"}}))
	violations := v.Validate(map[string]any{"hq": map[string]any{}})
	require.Len(t, violations, 1)
	assert.Equal(t, "hq", violations[0].Path)
	assert.Equal(t, "required", violations[0].Rule)
}

func TestRecursiveRef(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{
		ID:   "db://core/app/schemas/v1/tree",
		Type: "object",
		Properties: map[string]*Definition{
			"value":    {Type: "string"},
			"children": {Type: "array", Items: &Definition{Ref: "#/definitions/self"}},
		},
		Definitions: map[string]*Definition{
			"self": {Ref: "db://core/app/schemas/v1/tree"},
		},
	}))

	v, err := r.Compile("db://core/app/schemas/v1/tree")
	require.NoError(t, err)

	assert.Empty(t, v.Validate(map[string]any{
		"value": "root",
		"children": []any{
			map[string]any{"value": "leaf"},
		},
	}))
	violations := v.Validate(map[string]any{
		"children": []any{
			map[string]any{"value": 7},
		},
	})
	require.Len(t, violations, 1)
	assert.Equal(t, "children[0].value", violations[0].Path)
}

func TestCompileUnknownRef(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{
		ID:   "db://core/app/schemas/v1/bad",
		Type: "object",
		Properties: map[string]*Definition{
			"x": {Ref: "db://core/app/schemas/v1/missing"},
		},
	}))
	_, err := r.Compile("db://core/app/schemas/v1/bad")
	assert.Error(t, err)
}

func TestLoadDirAndRebuild(t *testing.T) {
	dir := t.TempDir()
	schemaYAML := `id: db://core/app/schemas/v1/note
type: object
required: [title]
properties:
  title:
    type: string
`
	path := filepath.Join(dir, "note.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))

	v, err := r.Compile("db://core/app/schemas/v1/note")
	require.NoError(t, err)
	assert.Empty(t, v.Validate(map[string]any{"title": "hello"}))

	// Rebuild picks up schema file changes.
	changed := schemaYAML + "  body:\n    type: string\n"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	require.NoError(t, r.Rebuild())

	v2, err := r.Compile("db://core/app/schemas/v1/note")
	require.NoError(t, err)
	violations := v2.Validate(map[string]any{"title": "hello", "body": 1})
	require.Len(t, violations, 1)
	assert.Equal(t, "body", violations[0].Path)
}

type recordingFS struct {
	fs.FileSystem
	opened []string
}

func (r *recordingFS) OpenFile(name string, flag int, perm os.FileMode) (fs.File, error) {
	r.opened = append(r.opened, name)
	return r.FileSystem.OpenFile(name, flag, perm)
}

func TestLoadGoesThroughFileSystem(t *testing.T) {
	dir := t.TempDir()
	schemaYAML := `id: db://core/app/schemas/v1/note
type: object
`
	path := filepath.Join(dir, "note.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))

	rfs := &recordingFS{FileSystem: fs.Default}
	r := NewRegistry(func(o *Options) { o.FS = rfs })
	require.NoError(t, r.LoadDir(dir))

	_, ok := r.Lookup("db://core/app/schemas/v1/note")
	assert.True(t, ok)
	assert.Equal(t, []string{path}, rfs.opened, "schema files are read through the configured file system")
}

func TestViolationString(t *testing.T) {
	v := Violation{Path: "age", Rule: "type", Want: "integer", Got: "string"}
	assert.Contains(t, v.String(), "age")
	assert.Contains(t, v.String(), "integer")

	v = Violation{Rule: "required", Want: "name"}
	assert.Contains(t, v.String(), "(root)")
}
