// Package hnsw implements Hierarchical Navigable Small World graphs.
//
// HNSW provides approximate nearest neighbor search with high recall and
// sub-linear query time. The index is built once by sequential insertion and
// is then read-only: any number of goroutines may search it concurrently.
//
// # Parameters
//
//   - M: Max connections per node on layers >= 1; layer 0 allows 2*M (default: 16)
//   - EFConstruction: Candidate list width during construction (default: 200)
//   - ef: Candidate list width during search, passed per call
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
