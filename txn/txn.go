// Package txn provides atomic multi-operation batches: a file-backed journal
// with undo snapshots, a collection lock table and the record types shared
// with the recovery path.
//
// Each transaction writes one journal file before touching any document. The
// file carries the target operations and, as they are applied, the previous
// version of every touched document. A transaction whose journal never
// reaches Committed is rolled back from those snapshots on the next open.
package txn

import (
	"fmt"
	"time"

	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/query"
)

// OpKind identifies a transaction operation.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// String returns the stable name of the kind.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOpKind parses a stable kind name as produced by String.
func ParseOpKind(s string) (OpKind, error) {
	switch s {
	case "insert":
		return OpInsert, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	default:
		return OpInsert, fmt.Errorf("unknown operation kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OpKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOpKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Operation is one step of a transaction batch.
//
// Update and Delete target a document either by ID or, when Where is set, by
// a business-key condition resolved at execution time. Merge selects partial
// updates: fields present in Data overwrite, absent fields survive, a nil
// value removes the field.
type Operation struct {
	Kind       OpKind           `json:"kind"`
	Collection string           `json:"collection"`
	ID         string           `json:"id,omitempty"`
	Data       map[string]any   `json:"data,omitempty"`
	Merge      bool             `json:"merge,omitempty"`
	Where      *query.Condition `json:"where,omitempty"`
}

// Validate checks an operation for structural problems.
func (o Operation) Validate() error {
	if o.Collection == "" {
		return fmt.Errorf("%s operation requires a collection", o.Kind)
	}
	switch o.Kind {
	case OpInsert:
		if o.Data == nil {
			return fmt.Errorf("insert into %q requires data", o.Collection)
		}
		if o.Where != nil {
			return fmt.Errorf("insert into %q cannot target by condition", o.Collection)
		}
	case OpUpdate:
		if o.Data == nil {
			return fmt.Errorf("update in %q requires data", o.Collection)
		}
		if o.ID == "" && o.Where == nil {
			return fmt.Errorf("update in %q requires an id or a condition", o.Collection)
		}
	case OpDelete:
		if o.ID == "" && o.Where == nil {
			return fmt.Errorf("delete in %q requires an id or a condition", o.Collection)
		}
	default:
		return fmt.Errorf("unknown operation kind %d", o.Kind)
	}
	return nil
}

// Status is the lifecycle state of a journaled transaction.
type Status uint8

const (
	// StatusPending: journal written, no document touched yet.
	StatusPending Status = iota
	// StatusApplying: documents are being mutated; snapshots accumulate.
	StatusApplying
	// StatusCommitted: every operation applied and durable.
	StatusCommitted
	// StatusAborted: rolled back by the executor itself.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApplying:
		return "applying"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// OpRecord journals one operation together with its undo state.
type OpRecord struct {
	Kind       OpKind         `json:"kind"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data,omitempty"`
	Merge      bool           `json:"merge,omitempty"`

	// Applied is set once the operation has mutated the store.
	Applied bool `json:"applied,omitempty"`
	// Prev is the document version preceding the mutation, nil when the
	// document did not exist.
	Prev *document.Document `json:"prev,omitempty"`
}

// Record is the journaled form of a whole transaction.
type Record struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	Ops       []OpRecord `json:"ops"`
}

// Collections returns the distinct collections the record touches, unsorted.
func (r *Record) Collections() []string {
	seen := make(map[string]struct{}, len(r.Ops))
	var out []string
	for _, op := range r.Ops {
		if _, ok := seen[op.Collection]; !ok {
			seen[op.Collection] = struct{}{}
			out = append(out, op.Collection)
		}
	}
	return out
}
