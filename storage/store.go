// Package storage provides atomic, file-backed persistence for documents.
//
// One file per document, one directory per collection. Writes serialize to a
// temporary file, fsync, then rename over the target: the rename is the only
// operation that makes a write visible, so a crash before it leaves the
// previous version intact. A bounded LRU read-through cache (optional TTL)
// sits in front of reads and is updated on every write.
//
// The layer has no knowledge of schemas or semantics, and it never retries
// silently: I/O errors propagate unchanged.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/docgo/codec"
	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/internal/cache"
	"github.com/hupe1980/docgo/internal/fs"
)

// ErrNotFound is returned when a document does not exist.
//
// It satisfies errors.Is(err, os.ErrNotExist).
var ErrNotFound = os.ErrNotExist

const (
	collectionsDir = "collections"
	docsDir        = "docs"
	docExt         = ".json"
)

// Options configures a Store.
type Options struct {
	// Codec serializes documents. Defaults to codec.Default.
	Codec codec.Codec

	// CacheSize is the maximum number of cached documents. <= 0 disables
	// the cache.
	CacheSize int

	// CacheTTL expires cache entries after the given duration. 0 means no
	// expiry.
	CacheTTL time.Duration

	// FS abstracts file operations, for fault injection in tests.
	FS fs.FileSystem
}

// DefaultOptions returns default store options.
var DefaultOptions = Options{
	Codec:     nil,
	CacheSize: 1024,
	CacheTTL:  0,
}

// Store is an atomic file-per-document store rooted at a database directory.
type Store struct {
	root  string
	fsys  fs.FileSystem
	codec codec.Codec
	cache *cache.LRU
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, optFns ...func(*Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	if err := opts.FS.MkdirAll(filepath.Join(dir, collectionsDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Store{
		root:  dir,
		fsys:  opts.FS,
		codec: opts.Codec,
		cache: cache.New(opts.CacheSize, opts.CacheTTL),
	}, nil
}

// CollectionDir returns the directory owning a collection's files.
func (s *Store) CollectionDir(collection string) string {
	return filepath.Join(s.root, collectionsDir, collection)
}

// DocPath returns the file path of a document.
func (s *Store) DocPath(collection, id string) string {
	return filepath.Join(s.CollectionDir(collection), docsDir, id+docExt)
}

// EnsureCollection creates the collection's directories.
func (s *Store) EnsureCollection(collection string) error {
	return s.fsys.MkdirAll(filepath.Join(s.CollectionDir(collection), docsDir), 0o750)
}

// RemoveCollection deletes a collection directory and every document in it.
func (s *Store) RemoveCollection(collection string) error {
	s.InvalidateCollection(collection)
	return os.RemoveAll(s.CollectionDir(collection))
}

// Write persists a document atomically and updates the cache. The caller
// must hold the collection's write lock, so a reader never observes a cache
// entry newer than the durable file it was derived from.
func (s *Store) Write(collection string, doc *document.Document) error {
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, doc.ID, err)
	}
	if err := fs.WriteAtomic(s.fsys, s.DocPath(collection, doc.ID), data, 0o640); err != nil {
		s.cache.Delete(cache.Key{Collection: collection, ID: doc.ID})
		return err
	}
	s.cache.Set(cache.Key{Collection: collection, ID: doc.ID}, doc.Clone())
	return nil
}

// Read returns a document, consulting the cache first. The returned document
// is a private copy; callers may mutate it freely.
func (s *Store) Read(collection, id string) (*document.Document, error) {
	key := cache.Key{Collection: collection, ID: id}
	if v, ok := s.cache.Get(key); ok {
		return v.(*document.Document).Clone(), nil
	}

	data, err := fs.ReadFile(s.fsys, s.DocPath(collection, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return nil, err
	}

	doc := &document.Document{}
	if err := s.codec.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	s.cache.Set(key, doc.Clone())
	return doc, nil
}

// Delete removes a document file and its cache entry. Deleting a missing
// document returns ErrNotFound.
func (s *Store) Delete(collection, id string) error {
	s.cache.Delete(cache.Key{Collection: collection, ID: id})
	if err := s.fsys.Remove(s.DocPath(collection, id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return err
	}
	return nil
}

// IDs lists the document ids of a collection, sorted.
func (s *Store) IDs(collection string) ([]string, error) {
	entries, err := s.fsys.ReadDir(filepath.Join(s.CollectionDir(collection), docsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, docExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// List returns every document of a collection, sorted by id.
func (s *Store) List(collection string) ([]*document.Document, error) {
	ids, err := s.IDs(collection)
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Read(collection, id)
		if err != nil {
			// A file removed between listing and reading is not an error.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Invalidate drops a single cache entry.
func (s *Store) Invalidate(collection, id string) {
	s.cache.Delete(cache.Key{Collection: collection, ID: id})
}

// InvalidateCollection drops all cache entries of a collection.
func (s *Store) InvalidateCollection(collection string) {
	s.cache.Invalidate(func(k cache.Key) bool { return k.Collection == collection })
}

// CacheStats returns cache hit/miss counters.
func (s *Store) CacheStats() (hits, misses int64) {
	return s.cache.Stats()
}

// ValidID reports whether id is safe to use as a file name.
func ValidID(id string) bool {
	if id == "" || len(id) > 255 {
		return false
	}
	if strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}
