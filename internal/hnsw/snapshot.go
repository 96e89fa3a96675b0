package hnsw

import (
	"fmt"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/internal/vectorstore"
	"github.com/hupe1980/annbench/model"
)

// Snapshot is the serializable state of a built index.
// Slices alias the index; treat them as read-only.
type Snapshot struct {
	Options    Options
	Vectors    []float32
	Labels     []model.Label
	Links      [][][]model.ID // node -> layer -> neighbors
	EntryPoint model.ID
	MaxLayer   int
}

// Snapshot captures the index state.
func (h *HNSW) Snapshot() *Snapshot {
	data, labels := h.vectors.Raw()
	links := make([][][]model.ID, len(h.graph.nodes))
	for i := range h.graph.nodes {
		links[i] = h.graph.nodes[i].links
	}
	return &Snapshot{
		Options:    h.opts,
		Vectors:    data,
		Labels:     labels,
		Links:      links,
		EntryPoint: h.graph.entryPoint,
		MaxLayer:   h.graph.maxLayer,
	}
}

// FromSnapshot rebuilds an index from s and validates its invariants.
func FromSnapshot(s *Snapshot) (*HNSW, error) {
	h, err := New(func(o *Options) { *o = s.Options })
	if err != nil {
		return nil, err
	}
	if len(s.Links) != len(s.Labels) {
		return nil, fmt.Errorf("%w: %d link sets for %d labels", ErrInvariantViolation, len(s.Links), len(s.Labels))
	}

	vectors, err := vectorstore.FromRaw(s.Options.Dimension, s.Vectors, s.Labels)
	if err != nil {
		return nil, err
	}
	h.vectors = vectors
	cosine := s.Options.DistanceType == distance.MetricCosine
	for i := range vectors.Len() {
		id := model.ID(i)
		v := vectors.MustGet(id)
		if cosine && isZeroVector(v) {
			h.markZero(id)
		}
		h.remember(id, v)
	}

	h.graph.nodes = make([]node, len(s.Links))
	for i, links := range s.Links {
		if len(links) == 0 {
			return nil, fmt.Errorf("%w: node %d has no layers", ErrInvariantViolation, i)
		}
		h.graph.nodes[i] = node{links: links}
	}
	if len(s.Links) > 0 {
		if int(s.EntryPoint) >= len(s.Links) {
			return nil, fmt.Errorf("%w: entry point %d out of range", ErrInvariantViolation, s.EntryPoint)
		}
		h.graph.SetEntryPoint(s.EntryPoint)
		if h.graph.maxLayer != s.MaxLayer {
			return nil, fmt.Errorf("%w: entry point layer %d, recorded %d", ErrInvariantViolation, h.graph.maxLayer, s.MaxLayer)
		}
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
