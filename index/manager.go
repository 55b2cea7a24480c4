package index

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/internal/fs"
)

const (
	indexMagic    = "DGIX"
	ordinalsMagic = "DGOR"
	formatVersion = 1

	ordinalsFile = "ordinals.idx"
)

// backfillParallelism bounds the extraction goroutines during index creation.
const backfillParallelism = 8

// secondary is the behavior shared by all index kinds.
type secondary interface {
	add(ord uint32, v any)
	remove(ord uint32, v any)
	equal(v any) *roaring.Bitmap
	writeTo(w *bufio.Writer) error
	readFrom(r *bufio.Reader) error
}

func newSecondary(kind Kind) secondary {
	switch kind {
	case KindOrdered:
		return newOrderedIndex()
	case KindToken:
		return newTokenIndex()
	default:
		return newExactIndex()
	}
}

type entry struct {
	def  Definition
	impl secondary
}

// Manager owns every secondary index of one collection. Callers serialize
// writes through the collection lock; the manager's own mutex only protects
// against concurrent readers during lookups.
type Manager struct {
	mu   sync.RWMutex
	dir  string
	fsys fs.FileSystem

	byName map[string]*entry
	ords   *ordinals
}

// NewManager creates an empty manager persisting into dir.
func NewManager(dir string, fsys fs.FileSystem) *Manager {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Manager{
		dir:    dir,
		fsys:   fsys,
		byName: make(map[string]*entry),
		ords:   newOrdinals(),
	}
}

// Definitions returns the registered definitions, sorted by name.
func (m *Manager) Definitions() []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Definition, 0, len(m.byName))
	for _, e := range m.byName {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether an index with the given name exists.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byName[name]
	return ok
}

// Create registers a new index and backfills it from every existing document.
// For unique definitions, a duplicate value among the documents aborts the
// creation with *ErrUniqueViolation and leaves the manager unchanged.
func (m *Manager) Create(ctx context.Context, def Definition, docs []*document.Document) error {
	if err := def.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[def.Name]; ok {
		return fmt.Errorf("index %q already exists", def.Name)
	}

	// Extract field values in parallel, apply sequentially.
	extracted := make([][]any, len(docs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(backfillParallelism)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			extracted[i] = extract(def.Field, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	impl := newSecondary(def.Kind)
	seen := make(map[string]string)
	for i, doc := range docs {
		ord := m.ords.allocate(doc.ID)
		for _, v := range extracted[i] {
			if def.Unique {
				key := document.Key(v)
				if prev, ok := seen[key]; ok && prev != doc.ID {
					return &ErrUniqueViolation{
						Index: def.Name, Field: def.Field, Value: v, ExistingID: prev,
					}
				}
				seen[key] = doc.ID
			}
			impl.add(ord, v)
		}
	}

	m.byName[def.Name] = &entry{def: def, impl: impl}
	if err := m.saveLocked(); err != nil {
		delete(m.byName, def.Name)
		return err
	}
	return nil
}

// Drop removes an index and its file.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("index %q does not exist", name)
	}
	delete(m.byName, name)
	if err := m.fsys.Remove(filepath.Join(m.dir, e.def.FileName())); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CheckUnique verifies that writing doc would not collide with another
// document on any unique index. It must run before the write mutates any
// state.
func (m *Manager) CheckUnique(doc *document.Document) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own, hasOwn := m.ords.lookup(doc.ID)
	for _, e := range m.byName {
		if !e.def.Unique {
			continue
		}
		for _, v := range extract(e.def.Field, doc) {
			bm := e.impl.equal(v)
			if bm == nil {
				continue
			}
			it := bm.Iterator()
			for it.HasNext() {
				ord := it.Next()
				if hasOwn && ord == own {
					continue
				}
				id, _ := m.ords.idOf(ord)
				return &ErrUniqueViolation{
					Index: e.def.Name, Field: e.def.Field, Value: v, ExistingID: id,
				}
			}
		}
	}
	return nil
}

// OnWrite updates every index after a document change. oldDoc is nil for an
// insert, newDoc is nil for a delete; both set means an update. Entries of
// the previous version are removed and entries of the new version added, so
// only the difference is touched.
func (m *Manager) OnWrite(oldDoc, newDoc *document.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ord uint32
	switch {
	case newDoc != nil:
		ord = m.ords.allocate(newDoc.ID)
	case oldDoc != nil:
		var ok bool
		if ord, ok = m.ords.lookup(oldDoc.ID); !ok {
			return
		}
	default:
		return
	}

	for _, e := range m.byName {
		if oldDoc != nil {
			for _, v := range extract(e.def.Field, oldDoc) {
				e.impl.remove(ord, v)
			}
		}
		if newDoc != nil {
			for _, v := range extract(e.def.Field, newDoc) {
				e.impl.add(ord, v)
			}
		}
	}
}

// LookupEqual returns candidate document ids for an equality match on field.
// The bool reports whether a usable index exists; candidates from a token
// index are a superset and callers re-verify against the documents.
func (m *Manager) LookupEqual(field string, v any) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e := m.pick(field, KindExact, KindOrdered, KindToken)
	if e == nil {
		return nil, false
	}
	if e.def.Kind == KindToken {
		// A token index only sees whole tokens. Values that yield none
		// (non-strings, punctuation-only strings) would produce an empty
		// candidate set for documents a scan matches; make the caller scan.
		s, ok := document.AsString(v)
		if !ok || len(Tokenize(s)) == 0 {
			return nil, false
		}
	}
	return m.idsOf(e.impl.equal(v)), true
}

// LookupRange returns candidate ids for a range match on field. Only an
// ordered index can serve it. Nil bounds are open.
func (m *Manager) LookupRange(field string, lower, upper any, incLower, incUpper bool) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e := m.pick(field, KindOrdered)
	if e == nil {
		return nil, false
	}
	ordered := e.impl.(*orderedIndex)
	return m.idsOf(ordered.between(lower, upper, incLower, incUpper)), true
}

// LookupToken returns candidate ids whose indexed text contains the token.
func (m *Manager) LookupToken(field, token string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e := m.pick(field, KindToken)
	if e == nil {
		return nil, false
	}
	return m.idsOf(e.impl.(*tokenIndex).token(token)), true
}

// pick selects the index serving a field, preferring kinds in the given
// order. Ties break by name so planning is deterministic.
func (m *Manager) pick(field string, kinds ...Kind) *entry {
	for _, kind := range kinds {
		var best *entry
		for _, e := range m.byName {
			if e.def.Field != field || e.def.Kind != kind {
				continue
			}
			if best == nil || e.def.Name < best.def.Name {
				best = e
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func (m *Manager) idsOf(bm *roaring.Bitmap) []string {
	if bm == nil || bm.IsEmpty() {
		return nil
	}
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if id, ok := m.ords.idOf(it.Next()); ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Save persists the ordinal table and every index file atomically, one file
// per index.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if len(m.byName) == 0 {
		return nil
	}
	if err := m.fsys.MkdirAll(m.dir, 0o750); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if _, err := w.WriteString(ordinalsMagic); err != nil {
		return err
	}
	if err := w.WriteByte(formatVersion); err != nil {
		return err
	}
	if err := m.ords.writeTo(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := fs.WriteAtomic(m.fsys, filepath.Join(m.dir, ordinalsFile), buf.Bytes(), 0o640); err != nil {
		return err
	}

	for _, e := range m.byName {
		buf.Reset()
		w.Reset(&buf)
		if _, err := w.WriteString(indexMagic); err != nil {
			return err
		}
		if err := w.WriteByte(formatVersion); err != nil {
			return err
		}
		if err := w.WriteByte(byte(e.def.Kind)); err != nil {
			return err
		}
		if err := e.impl.writeTo(w); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		path := filepath.Join(m.dir, e.def.FileName())
		if err := fs.WriteAtomic(m.fsys, path, buf.Bytes(), 0o640); err != nil {
			return fmt.Errorf("failed to persist index %q: %w", e.def.Name, err)
		}
	}
	return nil
}

// Load restores the given definitions from their files. Any missing or
// corrupt file fails the whole load; the caller then rebuilds from the
// documents instead.
func (m *Manager) Load(defs []Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(defs) == 0 {
		return nil
	}

	ords := newOrdinals()
	data, err := fs.ReadFile(m.fsys, filepath.Join(m.dir, ordinalsFile))
	if err != nil {
		return fmt.Errorf("failed to load ordinal table: %w", err)
	}
	r := bufio.NewReader(bytes.NewReader(data))
	if err := checkHeader(r, ordinalsMagic); err != nil {
		return fmt.Errorf("ordinal table: %w", err)
	}
	if err := ords.readFrom(r); err != nil {
		return fmt.Errorf("failed to decode ordinal table: %w", err)
	}

	byName := make(map[string]*entry, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		data, err := fs.ReadFile(m.fsys, filepath.Join(m.dir, def.FileName()))
		if err != nil {
			return fmt.Errorf("failed to load index %q: %w", def.Name, err)
		}
		r := bufio.NewReader(bytes.NewReader(data))
		if err := checkHeader(r, indexMagic); err != nil {
			return fmt.Errorf("index %q: %w", def.Name, err)
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		if Kind(kindByte) != def.Kind {
			return fmt.Errorf("index %q: file kind %s does not match definition kind %s",
				def.Name, Kind(kindByte), def.Kind)
		}
		impl := newSecondary(def.Kind)
		if err := impl.readFrom(r); err != nil {
			return fmt.Errorf("failed to decode index %q: %w", def.Name, err)
		}
		byName[def.Name] = &entry{def: def, impl: impl}
	}

	m.ords = ords
	m.byName = byName
	return nil
}

// Rebuild discards all in-memory state and recreates every definition from
// the given documents, then persists the result.
func (m *Manager) Rebuild(ctx context.Context, defs []Definition, docs []*document.Document) error {
	m.mu.Lock()
	m.byName = make(map[string]*entry, len(defs))
	m.ords = newOrdinals()
	m.mu.Unlock()

	for _, def := range defs {
		if err := m.Create(ctx, def, docs); err != nil {
			return err
		}
	}
	return nil
}

func checkHeader(r *bufio.Reader, magic string) error {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != magic {
		return fmt.Errorf("bad magic %q", buf)
	}
	version, err := r.ReadByte()
	if err != nil {
		return err
	}
	if version != formatVersion {
		return fmt.Errorf("unsupported format version %d", version)
	}
	return nil
}

// extract pulls the indexable values of a field. It resolves with the same
// one-level deep fallback the query executor uses, so indexed candidate sets
// are always a superset of what a scan would match regardless of the
// executor's deep-scan setting.
func extract(field string, doc *document.Document) []any {
	v, ok := document.LookupDeep(doc.Data, field)
	if !ok {
		return nil
	}
	return document.Values(v)
}
