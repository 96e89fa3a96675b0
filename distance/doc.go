// Package distance provides the metrics used to compare indexed vectors.
//
// Kernels are backed by github.com/viterin/vek, which uses AVX2 on amd64 and a
// portable fallback elsewhere. Results are deterministic: identical inputs always
// produce bit-identical outputs.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricCosine: cosine distance, 1 - cos(a, b)
//
// # Usage
//
//	d, err := distance.Distance(a, b, distance.MetricCosine)
//	m, err := distance.ParseMetric("angular") // MetricCosine
package distance
