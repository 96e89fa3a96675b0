package hnsw

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/annbench/model"
)

// Stats returns per-layer node and edge counts plus layer-0 reachability.
func (h *HNSW) Stats() Stats {
	g := h.graph
	st := Stats{
		Nodes:      g.Len(),
		MaxLayer:   g.maxLayer,
		EntryPoint: g.entryPoint,
		GraphBytes: g.SizeBytes(),
	}
	if g.maxLayer < 0 {
		return st
	}

	st.Levels = make([]LevelStats, g.maxLayer+1)
	for l := range st.Levels {
		st.Levels[l].Level = l
	}
	for i := range g.nodes {
		for l, list := range g.nodes[i].links {
			st.Levels[l].Nodes++
			st.Levels[l].Connections += len(list)
		}
	}
	for l := range st.Levels {
		if st.Levels[l].Nodes > 0 {
			st.Levels[l].AvgConnections = float64(st.Levels[l].Connections) / float64(st.Levels[l].Nodes)
		}
	}
	st.Reachable = h.reachable()
	return st
}

// reachable counts the nodes reachable on layer 0 from the entry point.
func (h *HNSW) reachable() int {
	if h.graph.Len() == 0 {
		return 0
	}
	return int(h.reachableSet().Count())
}

// reachableSet marks the nodes reachable on layer 0 from the entry point.
func (h *HNSW) reachableSet() *bitset.BitSet {
	g := h.graph
	seen := bitset.New(uint(g.Len()))
	if g.Len() > 0 {
		h.markReachable(seen, g.entryPoint)
	}
	return seen
}

// markReachable walks layer 0 from start and marks every node not yet in seen.
func (h *HNSW) markReachable(seen *bitset.BitSet, start model.ID) {
	g := h.graph
	if seen.Test(uint(start)) {
		return
	}
	seen.Set(uint(start))
	stack := []model.ID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range g.Neighbors(0, id) {
			if !seen.Test(uint(n)) {
				seen.Set(uint(n))
				stack = append(stack, n)
			}
		}
	}
}
