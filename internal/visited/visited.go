// Package visited tracks which nodes a graph traversal has already expanded.
package visited

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/annbench/model"
)

// VisitedSet is a reusable bitset keyed by internal id.
// It is not safe for concurrent use.
type VisitedSet struct {
	bits    *bitset.BitSet
	touched []model.ID
}

// New returns a VisitedSet sized for n nodes. It grows on demand.
func New(n int) *VisitedSet {
	if n < 0 {
		n = 0
	}
	return &VisitedSet{
		bits:    bitset.New(uint(n)),
		touched: make([]model.ID, 0, 64),
	}
}

// Visit marks id as visited.
func (v *VisitedSet) Visit(id model.ID) {
	v.bits.Set(uint(id))
	v.touched = append(v.touched, id)
}

// Visited reports whether id has been visited.
func (v *VisitedSet) Visited(id model.ID) bool {
	return v.bits.Test(uint(id))
}

// TestAndVisit marks id and reports whether it was already visited.
func (v *VisitedSet) TestAndVisit(id model.ID) bool {
	if v.bits.Test(uint(id)) {
		return true
	}
	v.Visit(id)
	return false
}

// Count returns the number of distinct ids visited since the last Reset.
func (v *VisitedSet) Count() int {
	return len(v.touched)
}

// Reset clears the set. Sparse traversals only clear the bits they touched.
func (v *VisitedSet) Reset() {
	if uint(len(v.touched))*64 < v.bits.Len() {
		for _, id := range v.touched {
			v.bits.Clear(uint(id))
		}
	} else {
		v.bits.ClearAll()
	}
	v.touched = v.touched[:0]
}
