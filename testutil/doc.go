// Package testutil provides testing and benchmarking utilities.
//
// It provides helpers for generating seeded random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	data := rng.GaussianVectors(1000, 128)
//	queries := rng.UnitVectors(100, 128)
//
// # Exact Search (Ground Truth)
//
//	results := testutil.ExactTopK(query, data, k, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
