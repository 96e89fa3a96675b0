package benchmark

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/annbench/model"
)

// Recall returns the fraction of the first k ground truth labels found in
// the first k results. k is clamped to the ground truth length.
func Recall(truth, got []model.Label, k int) float64 {
	k = min(k, len(truth))
	if k <= 0 {
		return 1
	}
	want := roaring64.New()
	for _, l := range truth[:k] {
		want.Add(uint64(l))
	}
	found := roaring64.New()
	for _, l := range got[:min(k, len(got))] {
		found.Add(uint64(l))
	}
	return float64(want.AndCardinality(found)) / float64(k)
}

// MeanRecall averages Recall over a query set. It is NaN for an empty set.
func MeanRecall(truth, got [][]model.Label, k int) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range truth {
		var g []model.Label
		if i < len(got) {
			g = got[i]
		}
		sum += Recall(truth[i], g, k)
	}
	return sum / float64(len(truth))
}
