// Package cache provides a bounded LRU cache for decoded documents.
//
// The cache sits in front of the storage layer's reads and is updated or
// invalidated on every write, under the same lock that protects the on-disk
// file. Entries may optionally expire after a TTL.
package cache
