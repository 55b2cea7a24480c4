package docgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/docgo/index"
	"github.com/hupe1980/docgo/schema"
	"github.com/hupe1980/docgo/semantic"
	"github.com/hupe1980/docgo/storage"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionExists is returned when creating a collection that
	// already exists.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrDocumentExists is returned when inserting a document whose id is
	// already taken.
	ErrDocumentExists = errors.New("document already exists")
	// ErrCollectionBusy is returned when a non-blocking operation cannot
	// acquire a collection lock.
	ErrCollectionBusy = errors.New("collection busy")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("database closed")
	// ErrInvalidID is returned when a document id is unusable as a file
	// name.
	ErrInvalidID = errors.New("invalid document id")
)

// ValidationError reports schema violations of a rejected document.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ValidationError struct {
	Collection string
	ID         string
	Violations []schema.Violation
	cause      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %s/%s failed schema validation: %s",
		e.Collection, e.ID, schema.FormatViolations(e.Violations))
}

func (e *ValidationError) Unwrap() error { return e.cause }

// SemanticError reports a document rejected in strict semantic mode.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type SemanticError struct {
	Collection string
	ID         string
	Type       string
	cause      error
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("document %s/%s declares unknown semantic type %q", e.Collection, e.ID, e.Type)
}

func (e *SemanticError) Unwrap() error { return e.cause }

// IndexConstraintError reports a write rejected by a unique index.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type IndexConstraintError struct {
	Collection string
	Index      string
	Field      string
	Value      any
	ExistingID string
	cause      error
}

func (e *IndexConstraintError) Error() string {
	return fmt.Sprintf("write to %s rejected by unique index %q: value %v already used by document %q",
		e.Collection, e.Index, e.Value, e.ExistingID)
}

func (e *IndexConstraintError) Unwrap() error { return e.cause }

// TransactionError reports a failed and rolled-back transaction. OpIndex is
// the zero-based position of the failing operation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type TransactionError struct {
	TxnID   string
	OpIndex int
	cause   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s rolled back: operation %d: %v", e.TxnID, e.OpIndex, e.cause)
}

func (e *TransactionError) Unwrap() error { return e.cause }

// translateError maps subsystem errors onto the package's error surface.
func translateError(collection string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var uv *index.ErrUniqueViolation
	if errors.As(err, &uv) {
		return &IndexConstraintError{
			Collection: collection,
			Index:      uv.Index,
			Field:      uv.Field,
			Value:      uv.Value,
			ExistingID: uv.ExistingID,
			cause:      err,
		}
	}

	var ut *semantic.UnknownTypeError
	if errors.As(err, &ut) {
		return &SemanticError{Collection: collection, Type: ut.Type, cause: err}
	}

	return err
}
