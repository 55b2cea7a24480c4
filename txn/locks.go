package txn

import (
	"sort"
	"sync"
)

// LockTable serializes access per collection: many readers or one writer.
// Writer batches spanning several collections acquire them in sorted name
// order, so two transactions can never deadlock on each other.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.RWMutex)}
}

func (t *LockTable) lockFor(collection string) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[collection] = l
	}
	return l
}

// Lock acquires the write locks of the given collections in sorted order and
// returns the release function.
func (t *LockTable) Lock(collections ...string) func() {
	sorted := sortedUnique(collections)
	for _, c := range sorted {
		t.lockFor(c).Lock()
	}
	return func() {
		// Release in reverse acquisition order.
		for i := len(sorted) - 1; i >= 0; i-- {
			t.locks[sorted[i]].Unlock()
		}
	}
}

// TryLock attempts to acquire the write locks without blocking. When any
// collection is busy it releases what it already holds and reports false.
func (t *LockTable) TryLock(collections ...string) (func(), bool) {
	sorted := sortedUnique(collections)
	for i, c := range sorted {
		if !t.lockFor(c).TryLock() {
			for j := i - 1; j >= 0; j-- {
				t.locks[sorted[j]].Unlock()
			}
			return nil, false
		}
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			t.locks[sorted[i]].Unlock()
		}
	}, true
}

// RLock acquires the read lock of one collection and returns the release
// function.
func (t *LockTable) RLock(collection string) func() {
	l := t.lockFor(collection)
	l.RLock()
	return l.RUnlock
}

func sortedUnique(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
