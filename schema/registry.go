// Package schema provides a registry of structural schemas and a validator
// that checks document trees against them.
//
// Validation is purely structural: required fields, primitive types, nested
// objects, pattern-matched dynamic property names, closed-object mode and
// reference resolution. It has no notion of semantic meaning; that lives in
// the semantic package.
package schema

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/docgo/internal/fs"
)

// Registry resolves schema URIs to definitions and compiles validators.
//
// Definitions are immutable once loaded for the process lifetime; Rebuild is
// the only way to pick up changed schema files. Registries are explicitly
// constructed and passed into the components that need them, never ambient,
// so independent database instances can coexist in one process.
type Registry struct {
	fsys fs.FileSystem

	mu       sync.RWMutex
	defs     map[string]*Definition
	compiled map[string]*Validator
	dirs     []string
}

// Options configures a Registry.
type Options struct {
	// FS abstracts file access for schema loading, for fault injection in
	// tests.
	FS fs.FileSystem
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(*Options)) *Registry {
	opts := Options{FS: fs.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	return &Registry{
		fsys:     opts.FS,
		defs:     make(map[string]*Definition),
		compiled: make(map[string]*Validator),
	}
}

// Register adds a definition under its ID.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("schema definition requires an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("schema %q already registered", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// LoadFile parses a YAML or JSON schema document and registers it.
// Returns the registered URI.
func (r *Registry) LoadFile(path string) (string, error) {
	data, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return "", err
	}
	def := &Definition{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, def)
	default:
		err = yaml.Unmarshal(data, def)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	if def.ID == "" {
		return "", fmt.Errorf("schema %s has no id", path)
	}
	if err := r.Register(def); err != nil {
		return "", err
	}
	return def.ID, nil
}

// LoadDir registers every .yaml/.yml/.json file under dir. The directory is
// remembered so Rebuild can re-read it.
func (r *Registry) LoadDir(dir string) error {
	if err := r.loadDir(dir); err != nil {
		return err
	}
	r.mu.Lock()
	r.dirs = append(r.dirs, dir)
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadDir(dir string) error {
	entries, err := r.fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := r.loadDir(path); err != nil {
				return err
			}
			continue
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			if _, err := r.LoadFile(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rebuild drops all definitions and compiled validators, then re-reads every
// directory previously loaded via LoadDir. Definitions added with Register
// are lost; re-register them after a rebuild.
func (r *Registry) Rebuild() error {
	r.mu.Lock()
	r.defs = make(map[string]*Definition)
	r.compiled = make(map[string]*Validator)
	dirs := append([]string(nil), r.dirs...)
	r.mu.Unlock()

	for _, dir := range dirs {
		if err := r.loadDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the raw definition registered under uri.
func (r *Registry) Lookup(uri string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[uri]
	return def, ok
}

// Compile resolves all references in the schema registered under uri and
// returns a validator. Compiled validators are cached until Rebuild.
func (r *Registry) Compile(uri string) (*Validator, error) {
	r.mu.RLock()
	if v, ok := r.compiled[uri]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.compiled[uri]; ok {
		return v, nil
	}
	def, ok := r.defs[uri]
	if !ok {
		return nil, fmt.Errorf("schema %q not registered", uri)
	}
	c := &compiler{registry: r, visited: make(map[*Definition]*node)}
	root, err := c.compile(def, def)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", uri, err)
	}
	v := &Validator{uri: uri, root: root}
	r.compiled[uri] = v
	return v, nil
}

// resolveRef resolves a $ref string relative to the document it appears in.
// Caller must hold r.mu (read or write).
func (r *Registry) resolveRef(doc *Definition, ref string) (*Definition, *Definition, error) {
	target := doc
	pointer := ref

	if !strings.HasPrefix(ref, "#") {
		uri, frag, _ := strings.Cut(ref, "#")
		resolved, ok := r.defs[uri]
		if !ok {
			return nil, nil, fmt.Errorf("referenced schema %q not registered", uri)
		}
		target = resolved
		if frag == "" {
			return resolved, target, nil
		}
		pointer = "#" + frag
	}

	name, ok := strings.CutPrefix(pointer, "#/definitions/")
	if !ok {
		return nil, nil, fmt.Errorf("unsupported reference %q", ref)
	}
	def, ok := target.Definitions[name]
	if !ok {
		return nil, nil, fmt.Errorf("reference %q not found", ref)
	}
	return def, target, nil
}
