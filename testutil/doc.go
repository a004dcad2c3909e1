// Package testutil provides testing utilities for vinstore.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG with generators for vins and rows.
//
//	rng := testutil.NewRNG(seed)
//	vins := rng.Vins(100)
//	rows := rng.Series(schema, vins[0], 0, 1000, 500)
//	rng.Shuffle(rows)
package testutil
