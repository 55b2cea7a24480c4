package docgo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/index"
	"github.com/hupe1980/docgo/internal/fs"
	"github.com/hupe1980/docgo/query"
	"github.com/hupe1980/docgo/schema"
	"github.com/hupe1980/docgo/semantic"
	"github.com/hupe1980/docgo/storage"
	"github.com/hupe1980/docgo/txn"
)

// Collection orchestrates writes to one collection: computed fields, semantic
// check, schema validation, version bookkeeping, unique precheck, persistence
// and index maintenance, in that order. The caller serializes writers through the
// database lock table.
type Collection struct {
	name      string
	spec      CollectionSpec
	store     *storage.Store
	indexes   *index.Manager
	validator *schema.Validator
	computer  *schema.Computer
	processor *semantic.Processor
	logger    *Logger
}

func newCollection(spec CollectionSpec, store *storage.Store, registry *schema.Registry, processor *semantic.Processor, logger *Logger, fsys fs.FileSystem) (*Collection, error) {
	c := &Collection{
		name:      spec.Name,
		spec:      spec,
		store:     store,
		indexes:   index.NewManager(filepath.Join(store.CollectionDir(spec.Name), "indexes"), fsys),
		processor: processor,
		logger:    logger.WithCollection(spec.Name),
	}
	if spec.Schema != "" {
		v, err := registry.Compile(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", spec.Name, err)
		}
		c.validator = v
		if def, ok := registry.Lookup(spec.Schema); ok {
			c.computer = schema.NewComputer(def)
		}
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Spec returns the catalog entry, with index definitions as currently
// registered.
func (c *Collection) Spec() CollectionSpec {
	spec := c.spec
	spec.Indexes = c.indexes.Definitions()
	return spec
}

// loadOrRebuildIndexes restores persisted index files, falling back to a full
// rebuild from the documents when files are missing or stale.
func (c *Collection) loadOrRebuildIndexes(ctx context.Context, force bool) error {
	defs := c.spec.Indexes
	if len(defs) == 0 {
		return nil
	}
	if !force {
		if err := c.indexes.Load(defs); err == nil {
			return nil
		}
	}
	docs, err := c.store.List(c.name)
	if err != nil {
		return err
	}
	return c.indexes.Rebuild(ctx, defs, docs)
}

// validate runs the write pipeline checks on a document about to be
// persisted. The document's data is normalized in place (context injection).
func (c *Collection) validate(ctx context.Context, doc *document.Document) error {
	doc.Data = c.processor.EnsureContext(doc.Data)

	// Derived fields fill in before any check sees the document, so
	// validation and unique constraints run against the computed values.
	if c.computer != nil {
		c.computer.Apply(doc.Data)
	}

	warnings, err := c.processor.CheckTypes(doc.Data, c.spec.Mode)
	if err != nil {
		var ut *semantic.UnknownTypeError
		if errors.As(err, &ut) {
			return &SemanticError{Collection: c.name, ID: doc.ID, Type: ut.Type, cause: err}
		}
		return err
	}
	c.logger.LogSemanticWarnings(ctx, c.name, doc.ID, warnings)

	if c.validator != nil {
		if violations := c.validator.Validate(doc.Data); len(violations) > 0 {
			return &ValidationError{Collection: c.name, ID: doc.ID, Violations: violations}
		}
	}

	return translateError(c.name, c.indexes.CheckUnique(doc))
}

// snapshot records the pre-transaction state of op's target into op.Prev and
// checks target existence rules. It runs before the journal entry carrying
// the snapshots becomes durable; no file is mutated yet.
func (c *Collection) snapshot(op *txn.OpRecord) error {
	switch op.Kind {
	case txn.OpInsert:
		if !storage.ValidID(op.ID) {
			return fmt.Errorf("%w: %q", ErrInvalidID, op.ID)
		}
		_, err := c.store.Read(c.name, op.ID)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", ErrDocumentExists, c.name, op.ID)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		op.Prev = nil
		return nil
	case txn.OpUpdate, txn.OpDelete:
		prev, err := c.store.Read(c.name, op.ID)
		if err != nil {
			return translateError(c.name, err)
		}
		op.Prev = prev
		return nil
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

// apply executes one journaled operation. The journal entry carrying the
// operation's snapshot must be durable before apply runs; a crash mid-apply
// is undone by restoring the snapshots on the next open.
func (c *Collection) apply(ctx context.Context, op *txn.OpRecord) error {
	switch op.Kind {
	case txn.OpInsert:
		return c.applyInsert(ctx, op)
	case txn.OpUpdate:
		return c.applyUpdate(ctx, op)
	case txn.OpDelete:
		return c.applyDelete(op)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

func (c *Collection) applyInsert(ctx context.Context, op *txn.OpRecord) error {
	now := time.Now().UTC()
	doc := &document.Document{
		ID:         op.ID,
		Collection: c.name,
		Data:       document.CloneData(op.Data),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.validate(ctx, doc); err != nil {
		return err
	}
	if err := c.store.Write(c.name, doc); err != nil {
		return err
	}
	c.indexes.OnWrite(nil, doc)
	op.Applied = true
	return nil
}

func (c *Collection) applyUpdate(ctx context.Context, op *txn.OpRecord) error {
	prev := op.Prev

	data := document.CloneData(op.Data)
	if op.Merge {
		data = document.Merge(prev.Data, op.Data)
	}
	doc := &document.Document{
		ID:         op.ID,
		Collection: c.name,
		Data:       data,
		Version:    prev.Version + 1,
		CreatedAt:  prev.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := c.validate(ctx, doc); err != nil {
		return err
	}
	if err := c.store.Write(c.name, doc); err != nil {
		return err
	}
	c.indexes.OnWrite(prev, doc)
	op.Applied = true
	return nil
}

func (c *Collection) applyDelete(op *txn.OpRecord) error {
	if err := c.store.Delete(c.name, op.ID); err != nil {
		return translateError(c.name, err)
	}
	c.indexes.OnWrite(op.Prev, nil)
	op.Applied = true
	return nil
}

// restore undoes one applied operation from its journaled snapshot. Used by
// in-flight rollback and by crash recovery; it must be idempotent.
func (c *Collection) restore(op *txn.OpRecord) error {
	cur, err := c.store.Read(c.name, op.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if op.Prev != nil {
		if err := c.store.Write(c.name, op.Prev); err != nil {
			return err
		}
		c.indexes.OnWrite(cur, op.Prev)
		return nil
	}

	if cur == nil {
		return nil
	}
	if err := c.store.Delete(c.name, op.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	c.indexes.OnWrite(cur, nil)
	return nil
}

// source adapts the collection's store to the query executor.
func (c *Collection) source() query.Source {
	return &collectionSource{store: c.store, name: c.name}
}

type collectionSource struct {
	store *storage.Store
	name  string
}

func (s *collectionSource) Read(id string) (*document.Document, error) {
	return s.store.Read(s.name, id)
}

func (s *collectionSource) List() ([]*document.Document, error) {
	return s.store.List(s.name)
}
