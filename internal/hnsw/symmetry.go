package hnsw

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/annbench/model"
)

// Symmetrize makes every neighbor relation undirected.
//
// Pruning during construction may leave A -> B without B -> A. For each such
// edge B gains A when it has room; otherwise the edge is dropped. If dropping
// would leave A without neighbors on the layer, B instead evicts its farthest
// neighbor that keeps at least one other link.
// It returns the number of edges changed.
func (h *HNSW) Symmetrize() int {
	g := h.graph
	changed := 0
	var snapshot []model.ID

	for layer := 0; layer <= g.maxLayer; layer++ {
		maxDeg := g.MaxDegree(layer)
		for i := range g.nodes {
			id := model.ID(i)
			if g.TopLayer(id) < layer {
				continue
			}
			snapshot = append(snapshot[:0], g.Neighbors(layer, id)...)
			for _, n := range snapshot {
				if g.hasLink(layer, n, id) {
					continue
				}
				changed++
				back := g.Neighbors(layer, n)
				if len(back) < maxDeg {
					g.nodes[n].links[layer] = append(back, id)
					continue
				}
				if len(g.Neighbors(layer, id)) > 1 {
					g.removeLink(layer, id, n)
					continue
				}
				if victim, ok := h.evictionCandidate(layer, n, id); ok {
					g.removeLink(layer, n, victim)
					g.removeLink(layer, victim, n)
					g.nodes[n].links[layer] = append(g.nodes[n].links[layer], id)
					continue
				}
				g.removeLink(layer, id, n)
			}
		}
	}
	return changed
}

// evictionCandidate returns n's farthest neighbor that keeps another link after
// losing n.
func (h *HNSW) evictionCandidate(layer int, n, keep model.ID) (model.ID, bool) {
	g := h.graph
	var (
		victim model.ID
		worst  float32 = -1
		found  bool
	)
	for _, c := range g.Neighbors(layer, n) {
		if c == keep {
			continue
		}
		remaining := len(g.Neighbors(layer, c))
		if g.hasLink(layer, c, n) {
			remaining--
		}
		if remaining < 1 {
			continue
		}
		if d := h.pairDist(n, c); d > worst {
			victim, worst, found = c, d, true
		}
	}
	return victim, found
}

// maxReconnectRounds bounds the passes of Reconnect; an eviction in one pass
// can detach a node that the next pass attaches again.
const maxReconnectRounds = 8

// Reconnect attaches every layer-0 node that cannot be reached from the entry
// point. Symmetrize may cut the last edge between two parts of the graph; each
// detached part is linked back through its first node and the nearest
// reachable node, preferring one with a free slot. Both links are added so the
// lists stay symmetric. It returns the number of edges added.
func (h *HNSW) Reconnect() int {
	g := h.graph
	if g.Len() == 0 {
		return 0
	}
	added := 0
	for range maxReconnectRounds {
		seen := h.reachableSet()
		if int(seen.Count()) == g.Len() {
			break
		}
		for i := range g.nodes {
			u := model.ID(i)
			if seen.Test(uint(i)) {
				continue
			}
			r := h.nearestReachable(u, seen)
			h.makeRoom(u, r)
			h.makeRoom(r, u)
			g.nodes[u].links[0] = append(g.nodes[u].links[0], r)
			g.nodes[r].links[0] = append(g.nodes[r].links[0], u)
			added++
			h.markReachable(seen, u)
		}
	}
	return added
}

// nearestReachable returns the reachable node closest to u, preferring nodes
// below the layer-0 degree cap.
func (h *HNSW) nearestReachable(u model.ID, seen *bitset.BitSet) model.ID {
	g := h.graph
	maxDeg := g.MaxDegree(0)
	var (
		best, bestFree         model.ID
		bestDist, bestFreeDist float32
		found, foundFree       bool
	)
	for i, ok := seen.NextSet(0); ok; i, ok = seen.NextSet(i + 1) {
		id := model.ID(i)
		d := h.pairDist(u, id)
		if !found || d < bestDist {
			best, bestDist, found = id, d, true
		}
		if len(g.Neighbors(0, id)) < maxDeg && (!foundFree || d < bestFreeDist) {
			bestFree, bestFreeDist, foundFree = id, d, true
		}
	}
	if foundFree {
		return bestFree
	}
	return best
}

// makeRoom frees a layer-0 slot on n by dropping its farthest neighbor other
// than keep, on both sides of the edge.
func (h *HNSW) makeRoom(n, keep model.ID) {
	g := h.graph
	if len(g.Neighbors(0, n)) < g.MaxDegree(0) {
		return
	}
	victim, ok := h.evictionCandidate(0, n, keep)
	if !ok {
		victim, ok = h.farthestNeighbor(n, keep)
	}
	if ok {
		g.removeLink(0, n, victim)
		g.removeLink(0, victim, n)
	}
}

func (h *HNSW) farthestNeighbor(n, keep model.ID) (model.ID, bool) {
	var (
		victim model.ID
		worst  float32 = -1
		found  bool
	)
	for _, c := range h.graph.Neighbors(0, n) {
		if c == keep {
			continue
		}
		if d := h.pairDist(n, c); d > worst {
			victim, worst, found = c, d, true
		}
	}
	return victim, found
}

// Validate checks the structural invariants of the graph: degree caps, no
// self loops or duplicates, neighbors present on the layer, symmetric lists, an
// entry point on the top layer and every node reachable on layer 0.
func (h *HNSW) Validate() error {
	g := h.graph
	if g.Len() != h.vectors.Len() {
		return fmt.Errorf("%w: %d graph nodes for %d vectors", ErrInvariantViolation, g.Len(), h.vectors.Len())
	}
	if g.Len() == 0 {
		return nil
	}

	ep, ok := g.EntryPoint()
	if !ok || int(ep) >= g.Len() {
		return fmt.Errorf("%w: missing entry point", ErrInvariantViolation)
	}

	for i := range g.nodes {
		id := model.ID(i)
		top := g.TopLayer(id)
		if top > g.maxLayer {
			return fmt.Errorf("%w: node %d on layer %d above entry layer %d", ErrInvariantViolation, id, top, g.maxLayer)
		}
		for layer := 0; layer <= top; layer++ {
			list := g.Neighbors(layer, id)
			if len(list) > g.MaxDegree(layer) {
				return fmt.Errorf("%w: node %d has %d neighbors on layer %d (cap %d)", ErrInvariantViolation, id, len(list), layer, g.MaxDegree(layer))
			}
			for j, n := range list {
				switch {
				case int(n) >= g.Len():
					return fmt.Errorf("%w: node %d links unknown node %d", ErrInvariantViolation, id, n)
				case n == id:
					return fmt.Errorf("%w: node %d links itself on layer %d", ErrInvariantViolation, id, layer)
				case slices.Contains(list[:j], n):
					return fmt.Errorf("%w: node %d links %d twice on layer %d", ErrInvariantViolation, id, n, layer)
				case g.TopLayer(n) < layer:
					return fmt.Errorf("%w: node %d links %d on layer %d it does not reach", ErrInvariantViolation, id, n, layer)
				case !g.hasLink(layer, n, id):
					return fmt.Errorf("%w: edge %d -> %d on layer %d is not symmetric", ErrInvariantViolation, id, n, layer)
				}
			}
		}
	}

	if n := h.reachable(); n != g.Len() {
		return fmt.Errorf("%w: %d of %d nodes unreachable from entry point %d on layer 0", ErrInvariantViolation, g.Len()-n, g.Len(), ep)
	}
	return nil
}
