// Package semantic maps short document keys and type names to absolute
// concept identifiers and checks declared types against a compiled
// vocabulary.
//
// The vocabulary is a fixed, statically compiled table; nothing is fetched
// over a network at runtime. Processors are explicitly constructed and passed
// in, never ambient, so independent database instances can use different
// vocabularies in one process.
package semantic

import (
	"fmt"
	"sort"
	"strings"
)

// ContextKey is the document key holding the context mapping.
const ContextKey = "@context"

// TypeKey is the document key holding declared semantic types.
const TypeKey = "@type"

// Mode selects how unknown declared types are treated. The choice is a
// per-call option, not global state.
type Mode int

const (
	// Permissive reports unknown types as warnings and accepts the document.
	Permissive Mode = iota
	// Strict rejects documents declaring unknown types.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// ParseMode parses a stable mode name. The empty string means Permissive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("unknown semantic mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler, used by the YAML catalog.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Context maps short prefixes to absolute identifier bases.
type Context map[string]string

// Clone returns a copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// UnknownTypeError reports a declared type missing from the vocabulary.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown semantic type %q", e.Type)
}

// TypeEntry describes a known concept and the property identifiers it is
// expected to carry.
type TypeEntry struct {
	Name       string
	Properties []string
}

// Vocabulary is a read-only table of known semantic types, keyed by absolute
// identifier.
type Vocabulary struct {
	types map[string]TypeEntry
}

// NewVocabulary compiles entries into a vocabulary.
func NewVocabulary(entries ...TypeEntry) *Vocabulary {
	v := &Vocabulary{types: make(map[string]TypeEntry, len(entries))}
	for _, e := range entries {
		v.types[e.Name] = e
	}
	return v
}

// DefaultBase is the identifier base of the built-in vocabulary.
const DefaultBase = "https://vocab.docgo.dev/"

// DefaultVocabulary returns the built-in compiled vocabulary.
func DefaultVocabulary() *Vocabulary {
	mk := func(name string, props ...string) TypeEntry {
		ids := make([]string, len(props))
		for i, p := range props {
			ids[i] = DefaultBase + p
		}
		return TypeEntry{Name: DefaultBase + name, Properties: ids}
	}
	return NewVocabulary(
		mk("Thing", "name"),
		mk("Document", "name", "text"),
		mk("Person", "name", "email"),
		mk("Organization", "name"),
		mk("Event", "name", "startDate"),
		mk("Dataset", "name", "records"),
		mk("Task", "name", "status"),
	)
}

// Lookup returns the entry for an absolute type identifier.
func (v *Vocabulary) Lookup(name string) (TypeEntry, bool) {
	e, ok := v.types[name]
	return e, ok
}

// Types returns all known type identifiers, sorted.
func (v *Vocabulary) Types() []string {
	out := make([]string, 0, len(v.types))
	for name := range v.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultContext maps the "dg" prefix to the built-in vocabulary base.
func DefaultContext() Context {
	return Context{"dg": DefaultBase}
}
