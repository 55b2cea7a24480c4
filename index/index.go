// Package index maintains secondary indexes over a collection's documents.
//
// Three kinds are supported: Exact (hash postings for equality), Ordered
// (sorted keys for range lookups) and Token (inverted index over case-folded
// alphanumeric tokens). Postings are Roaring bitmaps of per-collection
// document ordinals; an allocator maps ordinals back to document ids.
//
// Maintenance is diff-based: on every write the manager removes entries for
// the previous document version and inserts entries for the new one. Unique
// definitions are checked before any mutation.
package index

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind identifies an index implementation.
type Kind uint8

const (
	// KindExact is a hash index for equality lookups.
	KindExact Kind = iota
	// KindOrdered is a sorted-key index for range lookups.
	KindOrdered
	// KindToken is an inverted index over tokenized text.
	KindToken
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindOrdered:
		return "ordered"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// ParseKind parses a stable kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "exact":
		return KindExact, nil
	case "ordered":
		return KindOrdered, nil
	case "token":
		return KindToken, nil
	default:
		return KindExact, fmt.Errorf("unknown index kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler, used by the YAML catalog.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Definition describes a secondary index on a single field path.
type Definition struct {
	Name   string `yaml:"name" json:"name"`
	Field  string `yaml:"field" json:"field"`
	Kind   Kind   `yaml:"kind" json:"kind"`
	Unique bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// Validate checks the definition for completeness.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("index definition requires a name")
	}
	if d.Field == "" {
		return fmt.Errorf("index %q requires a field path", d.Name)
	}
	if d.Kind > KindToken {
		return fmt.Errorf("index %q has unknown kind", d.Name)
	}
	return nil
}

// FileName returns the on-disk file name of the index. It is derived from
// the index name, which is unique per collection, so two indexes never share
// a file even when they cover the same field with the same kind.
func (d Definition) FileName() string {
	name := strings.ReplaceAll(strings.ToLower(d.Name), ".", "_")
	return fmt.Sprintf("%s_%s.idx", name, d.Kind)
}

// ErrUniqueViolation reports a unique-index collision. The offending write is
// rejected before any file mutation.
type ErrUniqueViolation struct {
	Index      string
	Field      string
	Value      any
	ExistingID string
}

func (e *ErrUniqueViolation) Error() string {
	return fmt.Sprintf("unique index %q: value %v for field %q already used by document %q",
		e.Index, e.Value, e.Field, e.ExistingID)
}

// Tokenize splits text into case-folded alphanumeric tokens. Everything that
// is neither a letter nor a digit separates tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
