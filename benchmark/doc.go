// Package benchmark runs ANN algorithms against a dataset and reports recall,
// throughput, latency, build time and memory.
//
// Algorithm is the contract every benchmarked implementation satisfies. HNSW
// adapts annbench.Index to it. A Runner sweeps the parameter grid of a Config
// and collects one Result per (M, efConstruction, ef) point.
package benchmark
