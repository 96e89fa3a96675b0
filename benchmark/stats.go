package benchmark

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats summarizes per-query latencies in seconds.
type LatencyStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
}

// Summarize computes latency statistics. An empty input yields the zero value.
func Summarize(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}
	xs := make([]float64, len(latencies))
	for i, d := range latencies {
		xs[i] = d.Seconds()
	}
	slices.Sort(xs)

	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return LatencyStats{
		Count:  len(xs),
		Mean:   mean,
		StdDev: std,
		Min:    xs[0],
		P50:    stat.Quantile(0.50, stat.Empirical, xs, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, xs, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, xs, nil),
		Max:    xs[len(xs)-1],
	}
}

// QPS returns queries per second.
func QPS(queries int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(queries) / elapsed.Seconds()
}
