// Package testutil provides testing utilities for docgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating deterministic pseudo-random document
// data and for seeding collections in tests.
//
// # Random Document Generation
//
//	rng := testutil.NewRNG(seed)
//	docs := rng.Documents(100)
//
// The generator is seeded and reproducible: the same seed always yields the
// same documents.
package testutil
