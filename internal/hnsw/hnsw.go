package hnsw

import (
	"fmt"
	"math"
	"slices"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/internal/queue"
	"github.com/hupe1980/annbench/internal/searcher"
	"github.com/hupe1980/annbench/internal/vectorstore"
	"github.com/hupe1980/annbench/model"
)

// layerNormalizationBase is the base constant for exponential layer probability distribution.
const layerNormalizationBase = 1.0

// minimumLevelM keeps the level multiplier finite for M == 1.
const minimumLevelM = 2

// HNSW represents the Hierarchical Navigable Small World graph together with
// the vectors it indexes.
type HNSW struct {
	opts            Options
	distanceFunc    distance.Func
	layerMultiplier float64
	rngSeed         uint64

	vectors *vectorstore.Store
	graph   *Graph

	// zero marks cosine entries stored as the zero vector; nil until one is inserted.
	zero *bitset.BitSet
	// exact maps the hash of a stored vector to the ids holding it.
	exact map[uint64][]model.ID
}

// DistFunc computes the distance from a query vector to a node.
type DistFunc func(id model.ID) float32

// New creates an empty HNSW instance.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	distFunc, err := distance.Provider(opts.DistanceType)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.New(opts.Dimension, opts.Capacity)
	if err != nil {
		return nil, err
	}

	h := &HNSW{
		opts:            opts,
		distanceFunc:    distFunc,
		layerMultiplier: layerNormalizationBase / math.Log(float64(max(opts.M, minimumLevelM))),
		rngSeed:         uint64(opts.RandomSeed),
		vectors:         vectors,
		exact:           make(map[uint64][]model.ID, opts.Capacity),
	}
	h.graph = newGraph(opts.M, opts.Capacity, opts.Heuristic, h.pairDist)
	return h, nil
}

func (h *HNSW) pairDist(a, b model.ID) float32 {
	if za, zb := h.isZero(a), h.isZero(b); za || zb {
		return zeroDistance(za, zb)
	}
	return h.distanceFunc(h.vectors.MustGet(a), h.vectors.MustGet(b))
}

// queryDist returns the distance from the prepared query q to id.
func (h *HNSW) queryDist(q []float32, qZero bool, id model.ID) float32 {
	if zid := h.isZero(id); qZero || zid {
		return zeroDistance(qZero, zid)
	}
	return h.distanceFunc(q, h.vectors.MustGet(id))
}

func (h *HNSW) isZero(id model.ID) bool {
	return h.zero != nil && h.zero.Test(uint(id))
}

// zeroDistance is the cosine distance when at least one side is the zero
// vector: two zero vectors are identical, anything else is orthogonal.
func zeroDistance(a, b bool) float32 {
	if a && b {
		return 0
	}
	return 1
}

func (h *HNSW) markZero(id model.ID) {
	if h.zero == nil {
		h.zero = bitset.New(uint(max(h.opts.Capacity, int(id)+1)))
	}
	h.zero.Set(uint(id))
}

// vectorKey hashes the raw bytes of v.
func vectorKey(v []float32) uint64 {
	if len(v) == 0 {
		return 0
	}
	return xxhash.Sum64(unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4))
}

func (h *HNSW) remember(id model.ID, v []float32) {
	key := vectorKey(v)
	h.exact[key] = append(h.exact[key], id)
}

// exactMatches appends the ids whose stored vector equals q bit for bit.
func (h *HNSW) exactMatches(dst []model.ID, q []float32) []model.ID {
	for _, id := range h.exact[vectorKey(q)] {
		if slices.Equal(h.vectors.MustGet(id), q) {
			dst = append(dst, id)
		}
	}
	return dst
}

// Options returns the options the index was built with.
func (h *HNSW) Options() Options { return h.opts }

// Dimension returns the dimensionality of the vectors in the index.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Metric returns the distance metric of the index.
func (h *HNSW) Metric() distance.Metric { return h.opts.DistanceType }

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int { return h.vectors.Len() }

// Graph exposes the graph structure for inspection.
func (h *HNSW) Graph() *Graph { return h.graph }

// Vector returns the stored (possibly normalized) vector of id.
func (h *HNSW) Vector(id model.ID) ([]float32, error) { return h.vectors.Get(id) }

// Label returns the label of id.
func (h *HNSW) Label(id model.ID) (model.Label, error) { return h.vectors.Label(id) }

// exactEntryBytes approximates one exact-match map entry with its id slice.
const exactEntryBytes = 8 + 24 + 4

// Size returns the memory held by the vector store, the graph and the
// exact-match table in bytes.
func (h *HNSW) Size() int64 {
	size := h.vectors.SizeBytes() + h.graph.SizeBytes() + int64(len(h.exact))*exactEntryBytes
	if h.zero != nil {
		size += int64(len(h.zero.Bytes())) * 8
	}
	return size
}

// CheckVector validates v against the index without mutating anything.
func (h *HNSW) CheckVector(v []float32) error {
	if len(v) == 0 {
		return ErrEmptyInput
	}
	if len(v) != h.opts.Dimension {
		return &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}
	return nil
}

// prepareVector validates v and returns the form that is stored or searched.
// Cosine indexes work on unit vectors; buf is reused for the normalized copy.
// A zero vector cannot be normalized: it is kept as is and reported by isZero.
func (h *HNSW) prepareVector(v, buf []float32) (vec []float32, isZero bool, err error) {
	if err := h.CheckVector(v); err != nil {
		return nil, false, err
	}
	if h.opts.DistanceType != distance.MetricCosine {
		return v, false, nil
	}
	if cap(buf) < len(v) {
		buf = make([]float32, len(v))
	}
	buf = buf[:len(v)]
	copy(buf, v)
	if !distance.NormalizeL2InPlace(buf) {
		// Drop signed zeros so every zero vector hashes alike.
		clear(buf)
		return buf, true, nil
	}
	return buf, false, nil
}

// Insert adds v under label. Insertions must be sequential.
func (h *HNSW) Insert(v []float32, label model.Label) (model.ID, error) {
	vec, vecZero, err := h.prepareVector(v, nil)
	if err != nil {
		return 0, err
	}

	id, err := h.vectors.Append(vec, label)
	if err != nil {
		return 0, err
	}
	vec = h.vectors.MustGet(id)
	if vecZero {
		h.markZero(id)
	}
	h.remember(id, vec)

	level := h.randomLevel()
	if gid := h.graph.addNode(level); gid != id {
		return 0, fmt.Errorf("%w: graph id %d != store id %d", ErrInvariantViolation, gid, id)
	}

	epID, ok := h.graph.EntryPoint()
	if !ok {
		h.graph.SetEntryPoint(id)
		return id, nil
	}

	distFunc := func(nid model.ID) float32 {
		return h.queryDist(vec, vecZero, nid)
	}

	s := searcher.Get()
	defer searcher.Put(s)

	maxLevel := h.graph.MaxLayer()
	currID, currDist := h.greedySearch(epID, distFunc(epID), maxLevel, level, distFunc)

	entries := append(s.Results[:0], queue.PriorityQueueItem{Node: currID, Distance: currDist})
	for layer := min(level, maxLevel); layer >= 0; layer-- {
		h.searchLayer(s, entries, layer, h.opts.EFConstruction, distFunc)

		// The pool found on this layer seeds the next one down.
		entries = s.Candidates.DrainSorted(entries[:0])

		h.graph.pruneBuf = append(h.graph.pruneBuf[:0], entries...)
		h.graph.setNeighborsScored(layer, id, h.graph.pruneBuf)
		for _, n := range h.graph.Neighbors(layer, id) {
			h.graph.addLink(layer, n, id, h.pairDist(n, id))
		}
	}
	s.Results = entries

	if level > maxLevel {
		h.graph.SetEntryPoint(id)
	}
	return id, nil
}

// randomLevel draws floor(-ln(u) * mL) with u in (0, 1] from a xorshift64* stream.
func (h *HNSW) randomLevel() int {
	h.rngSeed += 0x9E3779B97F4A7C15 // Golden ratio prime
	seed := h.rngSeed
	seed ^= seed >> 12
	seed ^= seed << 25
	seed ^= seed >> 27
	r := float64((seed*0x2545F4914F6CDD1D)>>11) / float64(1<<53) // [0, 1)
	u := 1 - r                                                   // (0, 1]
	return int(math.Floor(-math.Log(u) * h.layerMultiplier))
}

// greedySearch walks from the entry point down to layer stop+1 following the
// single closest neighbor at each layer.
func (h *HNSW) greedySearch(currID model.ID, currDist float32, from, stop int, distFunc DistFunc) (model.ID, float32) {
	for layer := from; layer > stop; layer-- {
		changed := true
		for changed {
			changed = false
			for _, next := range h.graph.Neighbors(layer, currID) {
				nextDist := distFunc(next)
				if nextDist < currDist || (nextDist == currDist && next < currID) {
					currID = next
					currDist = nextDist
					changed = true
				}
			}
		}
	}
	return currID, currDist
}

// searchLayer runs a beam search of width ef on layer starting from entries.
// The ef best nodes found are left in s.Candidates (a max heap).
func (h *HNSW) searchLayer(s *searcher.Searcher, entries []queue.PriorityQueueItem, layer, ef int, distFunc DistFunc) {
	s.Visited.Reset()
	s.ScratchCandidates.Reset()
	s.Candidates.Reset()

	candidates := s.ScratchCandidates
	results := s.Candidates
	visited := s.Visited

	for _, e := range entries {
		if visited.TestAndVisit(e.Node) {
			continue
		}
		candidates.PushItem(e)
		results.PushItemBounded(e, ef)
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if worst, ok := results.TopItem(); ok && results.Len() >= ef && curr.Distance > worst.Distance {
			break
		}

		for _, next := range h.graph.Neighbors(layer, curr.Node) {
			if visited.TestAndVisit(next) {
				continue
			}
			nextDist := distFunc(next)
			s.OpsPerformed++

			item := queue.PriorityQueueItem{Node: next, Distance: nextDist}
			if results.PushItemBounded(item, ef) {
				candidates.PushItem(item)
			}
		}
	}
}

// KNNSearch returns the k nearest neighbors of q found with a candidate list of width ef.
func (h *HNSW) KNNSearch(q []float32, k, ef int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if ef < 1 {
		return nil, fmt.Errorf("%w: ef must be >= 1, got %d", ErrInvalidArgument, ef)
	}
	if k > ef {
		return nil, fmt.Errorf("%w: k (%d) exceeds ef (%d)", ErrInvalidArgument, k, ef)
	}

	s := searcher.Get()
	defer searcher.Put(s)

	q, qZero, err := h.prepareVector(q, s.ScratchVec)
	if err != nil {
		return nil, err
	}
	if h.opts.DistanceType == distance.MetricCosine {
		s.ScratchVec = q
	}

	epID, ok := h.graph.EntryPoint()
	if !ok {
		return []SearchResult{}, nil
	}

	distFunc := func(id model.ID) float32 {
		return h.queryDist(q, qZero, id)
	}

	currID, currDist := h.greedySearch(epID, distFunc(epID), h.graph.MaxLayer(), 0, distFunc)

	// Stored copies of q join the greedy entry so an indexed vector always
	// finds itself, whatever the graph degree.
	entries := append(s.Results[:0], queue.PriorityQueueItem{Node: currID, Distance: currDist})
	s.Matches = h.exactMatches(s.Matches[:0], q)
	for _, id := range s.Matches {
		entries = append(entries, queue.PriorityQueueItem{Node: id, Distance: distFunc(id)})
	}
	h.searchLayer(s, entries, 0, ef, distFunc)
	sorted := s.Candidates.DrainSorted(entries[:0])
	s.Results = sorted

	n := min(k, len(sorted))
	res := make([]SearchResult, n)
	for i := range n {
		label, err := h.vectors.Label(sorted[i].Node)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvariantViolation, err)
		}
		res[i] = SearchResult{ID: sorted[i].Node, Label: label, Distance: sorted[i].Distance}
	}
	return res, nil
}

// BruteSearch scans every vector. It is the exact reference for recall checks.
func (h *HNSW) BruteSearch(q []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	q, qZero, err := h.prepareVector(q, nil)
	if err != nil {
		return nil, err
	}

	pq := queue.NewMax(k)
	for i := range h.vectors.Len() {
		id := model.ID(i)
		pq.PushItemBounded(queue.PriorityQueueItem{Node: id, Distance: h.queryDist(q, qZero, id)}, k)
	}
	sorted := pq.DrainSorted(nil)
	res := make([]SearchResult, len(sorted))
	for i, it := range sorted {
		label, err := h.vectors.Label(it.Node)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvariantViolation, err)
		}
		res[i] = SearchResult{ID: it.Node, Label: label, Distance: it.Distance}
	}
	return res, nil
}
