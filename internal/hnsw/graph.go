package hnsw

import (
	"slices"

	"github.com/hupe1980/annbench/internal/queue"
	"github.com/hupe1980/annbench/model"
)

// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
const mmax0Multiplier = 2

// node holds the adjacency lists of one vector, one per layer it participates in.
type node struct {
	links [][]model.ID
}

// PairDistFunc computes the distance between two indexed nodes.
type PairDistFunc func(a, b model.ID) float32

// Graph is the layered proximity graph.
//
// Mutation is single-writer. After construction the graph is treated as
// immutable and may be read concurrently.
type Graph struct {
	m         int
	m0        int
	heuristic bool
	dist      PairDistFunc

	nodes      []node
	entryPoint model.ID
	maxLayer   int

	// scratch for pruning, only touched by the writer
	pruneBuf  []queue.PriorityQueueItem
	selectBuf []queue.PriorityQueueItem
}

func newGraph(m, capacity int, heuristic bool, dist PairDistFunc) *Graph {
	if capacity < 0 {
		capacity = 0
	}
	return &Graph{
		m:         m,
		m0:        mmax0Multiplier * m,
		heuristic: heuristic,
		dist:      dist,
		nodes:     make([]node, 0, capacity),
		maxLayer:  -1,
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// addNode appends a node that participates in layers 0..level and returns its id.
func (g *Graph) addNode(level int) model.ID {
	links := make([][]model.ID, level+1)
	links[0] = make([]model.ID, 0, g.m0)
	for l := 1; l <= level; l++ {
		links[l] = make([]model.ID, 0, g.m)
	}
	g.nodes = append(g.nodes, node{links: links})
	return model.ID(len(g.nodes) - 1)
}

// MaxDegree returns the neighbor cap of layer.
func (g *Graph) MaxDegree(layer int) int {
	if layer == 0 {
		return g.m0
	}
	return g.m
}

// TopLayer returns the highest layer id participates in.
func (g *Graph) TopLayer(id model.ID) int {
	return len(g.nodes[id].links) - 1
}

// Neighbors returns the neighbor list of id on layer. The slice is owned by the graph.
func (g *Graph) Neighbors(layer int, id model.ID) []model.ID {
	n := &g.nodes[id]
	if layer >= len(n.links) {
		return nil
	}
	return n.links[layer]
}

// EntryPoint returns the entry point, or false for an empty graph.
func (g *Graph) EntryPoint() (model.ID, bool) {
	if g.maxLayer < 0 {
		return 0, false
	}
	return g.entryPoint, true
}

// SetEntryPoint makes id the entry point; the maximum layer follows id's top layer.
func (g *Graph) SetEntryPoint(id model.ID) {
	g.entryPoint = id
	g.maxLayer = g.TopLayer(id)
}

// MaxLayer returns the top layer of the entry point, -1 for an empty graph.
func (g *Graph) MaxLayer() int { return g.maxLayer }

// SetNeighbors replaces the neighbor list of id on layer. When ids exceed the
// layer cap the pruning policy selects the kept subset.
func (g *Graph) SetNeighbors(layer int, id model.ID, ids []model.ID) {
	cands := g.pruneBuf[:0]
	for _, n := range ids {
		if n == id {
			continue
		}
		cands = append(cands, queue.PriorityQueueItem{Node: n, Distance: g.dist(id, n)})
	}
	g.pruneBuf = cands
	g.setNeighborsScored(layer, id, cands)
}

// setNeighborsScored is SetNeighbors for candidates that already carry their
// distance to id. cands is reordered in place.
func (g *Graph) setNeighborsScored(layer int, id model.ID, cands []queue.PriorityQueueItem) {
	slices.SortFunc(cands, compareItems)
	cands = slices.CompactFunc(cands, func(a, b queue.PriorityQueueItem) bool { return a.Node == b.Node })

	selected := g.selectNeighbors(cands, g.MaxDegree(layer))

	list := g.nodes[id].links[layer][:0]
	for _, s := range selected {
		list = append(list, s.Node)
	}
	g.nodes[id].links[layer] = list
}

// addLink adds target to the neighbor list of source on layer, re-pruning
// source's list when it is full.
func (g *Graph) addLink(layer int, source, target model.ID, dist float32) {
	list := g.nodes[source].links[layer]
	if slices.Contains(list, target) {
		return
	}
	if len(list) < g.MaxDegree(layer) {
		g.nodes[source].links[layer] = append(list, target)
		return
	}

	cands := g.pruneBuf[:0]
	for _, n := range list {
		cands = append(cands, queue.PriorityQueueItem{Node: n, Distance: g.dist(source, n)})
	}
	cands = append(cands, queue.PriorityQueueItem{Node: target, Distance: dist})
	g.pruneBuf = cands
	g.setNeighborsScored(layer, source, cands)
}

// removeLink drops target from source's list on layer.
func (g *Graph) removeLink(layer int, source, target model.ID) bool {
	list := g.nodes[source].links[layer]
	i := slices.Index(list, target)
	if i < 0 {
		return false
	}
	g.nodes[source].links[layer] = slices.Delete(list, i, i+1)
	return true
}

func (g *Graph) hasLink(layer int, source, target model.ID) bool {
	return slices.Contains(g.Neighbors(layer, source), target)
}

// selectNeighbors picks at most m neighbors from cands, sorted nearest first.
//
// With the heuristic enabled the closest candidate is always kept; a further
// candidate is admitted only if it is closer to the target than to every
// neighbor selected so far. Remaining slots are filled closest first.
func (g *Graph) selectNeighbors(cands []queue.PriorityQueueItem, m int) []queue.PriorityQueueItem {
	if len(cands) <= m || !g.heuristic {
		return cands[:min(len(cands), m)]
	}

	result := g.selectBuf[:0]
	for _, c := range cands {
		if len(result) >= m {
			break
		}
		good := true
		for _, r := range result {
			if g.dist(c.Node, r.Node) <= c.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, c)
		}
	}

	if len(result) < m {
		for _, c := range cands {
			if len(result) >= m {
				break
			}
			if !containsNode(result, c.Node) {
				result = append(result, c)
			}
		}
		slices.SortFunc(result, compareItems)
	}

	g.selectBuf = result
	return result
}

// SizeBytes estimates the memory held by the adjacency lists.
func (g *Graph) SizeBytes() int64 {
	const sliceHeader = 24
	total := int64(cap(g.nodes)) * sliceHeader
	for i := range g.nodes {
		links := g.nodes[i].links
		total += int64(cap(links)) * sliceHeader
		for _, l := range links {
			total += int64(cap(l)) * 4
		}
	}
	return total
}

func containsNode(items []queue.PriorityQueueItem, id model.ID) bool {
	for _, it := range items {
		if it.Node == id {
			return true
		}
	}
	return false
}

func compareItems(a, b queue.PriorityQueueItem) int {
	switch {
	case queue.Closer(a, b):
		return -1
	case queue.Closer(b, a):
		return 1
	default:
		return 0
	}
}
