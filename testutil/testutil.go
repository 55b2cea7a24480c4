package testutil

import (
	"fmt"
	"math/rand"
	"sync"
)

var firstNames = []string{
	"Alice", "Bob", "Cara", "Dan", "Eve", "Frank", "Grace", "Heidi",
	"Ivan", "Judy", "Mallory", "Niaj", "Olivia", "Peggy", "Rupert", "Sybil",
}

var cities = []string{
	"Berlin", "Paris", "Rome", "Madrid", "Lisbon", "Vienna", "Prague", "Oslo",
}

var tags = []string{
	"go", "db", "storage", "index", "query", "schema", "semantic",
}

// RNG is a seeded, thread-safe pseudo-random generator for test data.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Document generates one pseudo-random person document. The id makes the
// document unique; the remaining fields draw from small fixed pools so tests
// get predictable value distributions for filters and indexes.
func (r *RNG) Document(i int) map[string]any {
	return map[string]any{
		"id":    fmt.Sprintf("doc-%04d", i),
		"name":  firstNames[r.Intn(len(firstNames))],
		"age":   20 + r.Intn(50),
		"city":  cities[r.Intn(len(cities))],
		"email": fmt.Sprintf("user%04d@example.com", i),
		"tags":  []any{tags[r.Intn(len(tags))], tags[r.Intn(len(tags))]},
	}
}

// Documents generates n pseudo-random person documents with distinct ids.
func (r *RNG) Documents(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = r.Document(i)
	}
	return out
}
