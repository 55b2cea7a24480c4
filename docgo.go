package docgo

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/docgo/codec"
	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/index"
	"github.com/hupe1980/docgo/internal/fs"
	"github.com/hupe1980/docgo/query"
	"github.com/hupe1980/docgo/schema"
	"github.com/hupe1980/docgo/semantic"
	"github.com/hupe1980/docgo/storage"
	"github.com/hupe1980/docgo/txn"
)

const journalDir = "journal"

// DB is an embedded document database rooted at a directory.
type DB struct {
	dir       string
	opts      options
	logger    *Logger
	metrics   MetricsCollector
	fsys      fs.FileSystem
	store     *storage.Store
	journal   *txn.Journal
	locks     *txn.LockTable
	schemas   *schema.Registry
	processor *semantic.Processor
	watcher   *watcher

	mu          sync.RWMutex
	catalog     *catalog
	collections map[string]*Collection

	closed atomic.Bool
}

// Open opens or creates a database at dir, recovering any transaction that
// was interrupted by a crash before loading the indexes.
func Open(dir string, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)
	if opts.codec == nil {
		opts.codec = codec.Default
	}
	if opts.fs == nil {
		opts.fs = fs.Default
	}

	store, err := storage.New(dir, func(o *storage.Options) {
		o.Codec = opts.codec
		o.CacheSize = opts.cacheSize
		o.CacheTTL = opts.cacheTTL
		o.FS = opts.fs
	})
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry(func(o *schema.Options) { o.FS = opts.fs })
	for _, schemaDir := range opts.schemaDirs {
		if err := registry.LoadDir(schemaDir); err != nil {
			return nil, err
		}
	}

	journalOpts := append([]func(*txn.Options){func(o *txn.Options) {
		o.Codec = opts.codec
		o.FS = opts.fs
	}}, opts.journalOptions...)
	journal, err := txn.Open(filepath.Join(dir, journalDir), journalOpts...)
	if err != nil {
		return nil, err
	}

	db := &DB{
		dir:         dir,
		opts:        opts,
		logger:      opts.logger,
		metrics:     opts.metricsCollector,
		fsys:        opts.fs,
		store:       store,
		journal:     journal,
		locks:       txn.NewLockTable(),
		schemas:     registry,
		processor:   semantic.NewProcessor(opts.vocabulary, opts.defaultContext),
		collections: make(map[string]*Collection),
	}

	db.catalog, err = loadCatalog(opts.fs, dir)
	if err != nil {
		return nil, err
	}
	for _, spec := range db.catalog.Collections {
		c, err := newCollection(spec, store, registry, db.processor, db.logger, opts.fs)
		if err != nil {
			return nil, err
		}
		db.collections[spec.Name] = c
	}

	touched, err := db.recover(context.Background())
	if err != nil {
		return nil, err
	}
	for name, c := range db.collections {
		if err := c.loadOrRebuildIndexes(context.Background(), touched[name]); err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
	}

	if opts.watch {
		w, err := newWatcher(store, db.logger)
		if err != nil {
			return nil, err
		}
		db.watcher = w
		for name := range db.collections {
			if err := w.addCollection(name); err != nil {
				_ = w.Close()
				return nil, err
			}
		}
		w.start()
	}

	return db, nil
}

// recover rolls back every interrupted transaction found in the journal.
// Committed entries are cleared, anything else is undone from its snapshots
// in reverse operation order. Returns the collections whose indexes must be
// rebuilt.
func (db *DB) recover(ctx context.Context) (map[string]bool, error) {
	records, err := db.journal.Records()
	if err != nil {
		return nil, err
	}

	touched := make(map[string]bool)
	rolledBack, cleared := 0, 0
	for _, rec := range records {
		if rec.Status == txn.StatusCommitted {
			if err := db.journal.Remove(rec.ID); err != nil {
				return nil, err
			}
			cleared++
			continue
		}
		for i := len(rec.Ops) - 1; i >= 0; i-- {
			op := &rec.Ops[i]
			c, ok := db.collections[op.Collection]
			if !ok {
				// The collection was dropped after the crash; nothing to
				// restore.
				continue
			}
			if err := c.restore(op); err != nil {
				db.logger.LogRecovery(ctx, rolledBack, cleared, err)
				return nil, fmt.Errorf("failed to roll back transaction %s: %w", rec.ID, err)
			}
			touched[op.Collection] = true
		}
		if err := db.journal.Remove(rec.ID); err != nil {
			return nil, err
		}
		rolledBack++
	}
	db.logger.LogRecovery(ctx, rolledBack, cleared, nil)
	return touched, nil
}

// Close persists the indexes and releases the journal. Operations after
// Close return ErrClosed.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.watcher != nil {
		if err := db.watcher.Close(); err != nil {
			return err
		}
	}

	// Snapshot the registry first: holding db.mu while blocking on a
	// collection lock inverts the order used by CreateIndex/DropIndex,
	// which hold the collection lock and then take db.mu to save the spec.
	db.mu.RLock()
	collections := make(map[string]*Collection, len(db.collections))
	for name, c := range db.collections {
		collections[name] = c
	}
	db.mu.RUnlock()

	for name, c := range collections {
		release := db.locks.Lock(name)
		err := c.indexes.Save()
		release()
		if err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
	}
	return db.journal.Close()
}

// CollectionOptions configures CreateCollection.
type CollectionOptions struct {
	// Schema is a registry URI; when set, every write must validate.
	Schema string
	// Mode selects strict or permissive semantic type checking.
	Mode semantic.Mode
}

// CreateCollection registers a new collection in the catalog.
func (db *DB) CreateCollection(ctx context.Context, name string, optFns ...func(*CollectionOptions)) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if !storage.ValidID(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	var copts CollectionOptions
	for _, fn := range optFns {
		fn(&copts)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	if err := db.store.EnsureCollection(name); err != nil {
		return err
	}

	spec := CollectionSpec{Name: name, Schema: copts.Schema, Mode: copts.Mode}
	c, err := newCollection(spec, db.store, db.schemas, db.processor, db.logger, db.fsys)
	if err != nil {
		return err
	}

	db.catalog.Collections = append(db.catalog.Collections, spec)
	if err := db.catalog.save(db.fsys, db.dir); err != nil {
		db.catalog.remove(name)
		return err
	}
	db.collections[name] = c

	if db.watcher != nil {
		if err := db.watcher.addCollection(name); err != nil {
			db.logger.WarnContext(ctx, "failed to watch collection", "collection", name, "error", err)
		}
	}
	db.logger.InfoContext(ctx, "collection created", "collection", name, "schema", spec.Schema, "mode", spec.Mode.String())
	return nil
}

// DropCollection removes a collection with all its documents and indexes.
// It fails with ErrCollectionBusy instead of waiting for active writers.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	if db.closed.Load() {
		return ErrClosed
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	release, ok := db.locks.TryLock(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionBusy, name)
	}
	defer release()

	if err := db.store.RemoveCollection(name); err != nil {
		return err
	}
	delete(db.collections, name)
	db.catalog.remove(name)
	if err := db.catalog.save(db.fsys, db.dir); err != nil {
		return err
	}
	db.logger.InfoContext(ctx, "collection dropped", "collection", name)
	return nil
}

// Collections returns the collection names, sorted.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.collections))
	for name := range db.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (db *DB) collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Insert stores a new document and returns its id. When data carries a
// string "id" field it becomes the document id, otherwise one is generated.
func (db *DB) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	start := time.Now()
	ids, err := db.execute(ctx, []txn.Operation{{
		Kind:       txn.OpInsert,
		Collection: collection,
		Data:       data,
	}})
	db.metrics.RecordInsert(time.Since(start), err)
	if err != nil {
		db.logger.LogInsert(ctx, collection, "", err)
		return "", err
	}
	db.logger.LogInsert(ctx, collection, ids[0], nil)
	return ids[0], nil
}

// Get returns one document by id.
func (db *DB) Get(ctx context.Context, collection, id string) (*document.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	c, err := db.collection(collection)
	if err != nil {
		return nil, err
	}
	release := db.locks.RLock(collection)
	defer release()

	doc, err := c.store.Read(collection, id)
	return doc, translateError(collection, err)
}

// Update merges data into an existing document: fields present in data
// overwrite, absent fields survive, a nil value removes the field. The
// document's version increments.
func (db *DB) Update(ctx context.Context, collection, id string, data map[string]any) error {
	start := time.Now()
	_, err := db.execute(ctx, []txn.Operation{{
		Kind:       txn.OpUpdate,
		Collection: collection,
		ID:         id,
		Data:       data,
		Merge:      true,
	}})
	db.metrics.RecordUpdate(time.Since(start), err)
	db.logger.LogUpdate(ctx, collection, id, err)
	return err
}

// Replace overwrites an existing document's data entirely, keeping its id
// and creation time. The document's version increments.
func (db *DB) Replace(ctx context.Context, collection, id string, data map[string]any) error {
	start := time.Now()
	_, err := db.execute(ctx, []txn.Operation{{
		Kind:       txn.OpUpdate,
		Collection: collection,
		ID:         id,
		Data:       data,
	}})
	db.metrics.RecordUpdate(time.Since(start), err)
	db.logger.LogUpdate(ctx, collection, id, err)
	return err
}

// Delete removes a document.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	_, err := db.execute(ctx, []txn.Operation{{
		Kind:       txn.OpDelete,
		Collection: collection,
		ID:         id,
	}})
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, collection, id, err)
	return err
}

// ListAll returns every document of a collection, sorted by id.
func (db *DB) ListAll(ctx context.Context, collection string) ([]*document.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	c, err := db.collection(collection)
	if err != nil {
		return nil, err
	}
	release := db.locks.RLock(collection)
	defer release()
	return c.store.List(collection)
}

// CreateIndex registers a secondary index and backfills it from every
// existing document.
func (db *DB) CreateIndex(ctx context.Context, collection string, def index.Definition) error {
	if db.closed.Load() {
		return ErrClosed
	}
	c, err := db.collection(collection)
	if err != nil {
		return err
	}
	release := db.locks.Lock(collection)
	defer release()

	docs, err := c.store.List(collection)
	if err != nil {
		return err
	}
	if err := c.indexes.Create(ctx, def, docs); err != nil {
		return translateError(collection, err)
	}
	return db.saveCollectionSpec(c)
}

// DropIndex removes a secondary index and its file.
func (db *DB) DropIndex(ctx context.Context, collection, name string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	c, err := db.collection(collection)
	if err != nil {
		return err
	}
	release := db.locks.Lock(collection)
	defer release()

	if err := c.indexes.Drop(name); err != nil {
		return err
	}
	return db.saveCollectionSpec(c)
}

func (db *DB) saveCollectionSpec(c *Collection) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	spec, ok := db.catalog.find(c.name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
	}
	spec.Indexes = c.indexes.Definitions()
	return db.catalog.save(db.fsys, db.dir)
}

// Query executes a structured query.
func (db *DB) Query(ctx context.Context, q *query.Query) (*query.Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	c, err := db.collection(q.Collection)
	if err != nil {
		db.metrics.RecordQuery(0, time.Since(start), err)
		return nil, err
	}
	release := db.locks.RLock(q.Collection)
	defer release()

	var optFns []func(*query.Options)
	if !db.opts.deepScan {
		optFns = append(optFns, query.WithoutDeepScan())
	}
	res, err := query.New(c.source(), c.indexes, optFns...).Execute(ctx, q)

	matched := 0
	usedIndex := false
	if res != nil {
		matched = res.Matched
		usedIndex = res.Plan.UsedIndex
	}
	db.metrics.RecordQuery(matched, time.Since(start), err)
	db.logger.LogQuery(ctx, q.Collection, usedIndex, matched, err)
	return res, err
}

// ExecuteQuery parses and executes a SQL-like query. See query.Parse for the
// grammar.
func (db *DB) ExecuteQuery(ctx context.Context, text string) (*query.Result, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, q)
}

// ExecuteTransaction applies a batch of operations atomically: either every
// operation takes effect or none does. Returns the id of each operation's
// target document, in operation order.
func (db *DB) ExecuteTransaction(ctx context.Context, ops []txn.Operation) ([]string, error) {
	start := time.Now()
	ids, err := db.execute(ctx, ops)
	db.metrics.RecordTransaction(len(ops), time.Since(start), err)
	return ids, err
}

// execute runs the journaled write path shared by single-document operations
// and explicit transactions.
func (db *DB) execute(ctx context.Context, ops []txn.Operation) ([]string, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("transaction requires at least one operation")
	}

	colls := make(map[string]*Collection, 1)
	names := make([]string, 0, 1)
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		if _, ok := colls[op.Collection]; !ok {
			c, err := db.collection(op.Collection)
			if err != nil {
				return nil, err
			}
			colls[op.Collection] = c
			names = append(names, op.Collection)
		}
	}

	// All writer locks are taken upfront in sorted order.
	release := db.locks.Lock(names...)
	defer release()

	rec := &txn.Record{
		ID:        uuid.NewString(),
		Status:    txn.StatusPending,
		StartedAt: time.Now().UTC(),
		Ops:       make([]txn.OpRecord, len(ops)),
	}
	log := db.logger.WithTxnID(rec.ID)

	for i, op := range ops {
		c := colls[op.Collection]
		id := op.ID
		if op.Where != nil {
			resolved, err := db.resolveTarget(ctx, c, op.Where)
			if err != nil {
				return nil, &TransactionError{TxnID: rec.ID, OpIndex: i, cause: err}
			}
			id = resolved
		}
		if op.Kind == txn.OpInsert && id == "" {
			if s, ok := op.Data["id"].(string); ok && s != "" {
				id = s
			} else {
				id = uuid.NewString()
			}
		}
		rec.Ops[i] = txn.OpRecord{
			Kind:       op.Kind,
			Collection: op.Collection,
			ID:         id,
			Data:       op.Data,
			Merge:      op.Merge,
		}
		if err := c.snapshot(&rec.Ops[i]); err != nil {
			return nil, &TransactionError{TxnID: rec.ID, OpIndex: i, cause: err}
		}
	}

	// The journal entry with every snapshot must be durable before the
	// first mutation; from here a crash is recoverable.
	if err := db.journal.Begin(rec); err != nil {
		return nil, err
	}
	rec.Status = txn.StatusApplying
	if err := db.journal.Update(rec); err != nil {
		_ = db.journal.Remove(rec.ID)
		return nil, err
	}

	for i := range rec.Ops {
		op := &rec.Ops[i]
		if err := colls[op.Collection].apply(ctx, op); err != nil {
			if rbErr := db.rollback(rec, i); rbErr != nil {
				// Leave the journal entry behind; the next open retries the
				// rollback from the snapshots.
				log.LogTransaction(ctx, rec.ID, len(ops), rbErr)
				return nil, &TransactionError{TxnID: rec.ID, OpIndex: i,
					cause: fmt.Errorf("%w (rollback incomplete: %w)", err, rbErr)}
			}
			_ = db.journal.Remove(rec.ID)
			log.LogTransaction(ctx, rec.ID, len(ops), err)
			return nil, &TransactionError{TxnID: rec.ID, OpIndex: i, cause: err}
		}
	}

	rec.Status = txn.StatusCommitted
	if err := db.journal.Update(rec); err != nil {
		return nil, err
	}
	if err := db.journal.Remove(rec.ID); err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := colls[name].indexes.Save(); err != nil {
			// The indexes rebuild from the documents on the next open.
			log.WarnContext(ctx, "failed to persist indexes", "collection", name, "error", err)
		}
	}

	ids := make([]string, len(rec.Ops))
	for i := range rec.Ops {
		ids[i] = rec.Ops[i].ID
	}
	log.LogTransaction(ctx, rec.ID, len(ops), nil)
	return ids, nil
}

// rollback undoes applied operations up to and including index upTo, in
// reverse order.
func (db *DB) rollback(rec *txn.Record, upTo int) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for i := upTo; i >= 0; i-- {
		op := &rec.Ops[i]
		c, ok := db.collections[op.Collection]
		if !ok {
			continue
		}
		if err := c.restore(op); err != nil {
			return err
		}
	}
	return nil
}

// resolveTarget finds the single document matched by a business-key
// condition. Zero matches fail with ErrNotFound, more than one is an error.
func (db *DB) resolveTarget(ctx context.Context, c *Collection, cond *query.Condition) (string, error) {
	var optFns []func(*query.Options)
	if !db.opts.deepScan {
		optFns = append(optFns, query.WithoutDeepScan())
	}
	res, err := query.New(c.source(), c.indexes, optFns...).Execute(ctx, &query.Query{
		Collection: c.name,
		Filter:     &query.Node{Cond: cond},
		Limit:      2,
	})
	if err != nil {
		return "", err
	}
	switch len(res.Docs) {
	case 0:
		return "", fmt.Errorf("%w: no document in %s matches %s", ErrNotFound, c.name, cond)
	case 1:
		return res.Docs[0].ID, nil
	default:
		return "", fmt.Errorf("condition %s matches more than one document in %s", cond, c.name)
	}
}
