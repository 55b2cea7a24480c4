// Package document defines the storage form of a docgo document: an untyped
// tree of objects, arrays and scalars, plus the bookkeeping fields the engine
// maintains (version, timestamps).
//
// The tree stays untyped on purpose. Strong typing is reserved for the
// boundaries that need to reason about a specific field (the schema validator,
// the query executor); forcing a single static type onto every stored
// document would make the store unusable as a general bag of properties.
package document

import (
	"time"
)

// Document is a single versioned record owned by a collection.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the document.
// Mutating the copy never affects the original.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Data = CloneData(d.Data)
	return &c
}

// CloneData deep-copies a document data tree.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// Scalars are immutable.
		return v
	}
}

// Merge overlays patch onto base and returns a new tree. Only top-level
// fields present in patch are replaced; everything else keeps its prior
// value. A nil value in patch removes the field.
func Merge(base, patch map[string]any) map[string]any {
	out := CloneData(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}
