package annbench

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/annbench/blobstore"
	"github.com/hupe1980/annbench/internal/hnsw"
	"github.com/hupe1980/annbench/persistence"
)

// Save writes a snapshot of the fitted index, including the current search width.
func (idx *Index) Save(ctx context.Context, w io.Writer, optFns ...persistence.Option) error {
	h, err := idx.load()
	if err != nil {
		return err
	}
	snap := &persistence.IndexSnapshot{Graph: h.Snapshot(), EF: idx.SearchWidth()}
	fns := append([]persistence.Option{persistence.WithResourceController(idx.opts.resource)}, optFns...)
	return persistence.Write(ctx, w, snap, fns...)
}

// SaveTo writes a snapshot as blob name in store.
func (idx *Index) SaveTo(ctx context.Context, store blobstore.Store, name string, optFns ...persistence.Option) error {
	err := blobstore.Write(ctx, store, name, func(w io.Writer) error {
		return idx.Save(ctx, w, optFns...)
	})
	idx.opts.logger.LogSnapshot(ctx, "save", name, err)
	return err
}

// Load reads a snapshot written by Save into a new, fitted index.
// Construction parameters come from the snapshot; optFns supply the logger,
// metrics collector, resource controller and worker count.
func Load(ctx context.Context, r io.Reader, optFns ...Option) (*Index, error) {
	idx, err := New(optFns...)
	if err != nil {
		return nil, err
	}

	snap, err := persistence.Read(ctx, r, persistence.WithResourceController(idx.opts.resource))
	if err != nil {
		return nil, translateError(err)
	}
	if err := idx.restore(snap); err != nil {
		return nil, err
	}
	return idx, nil
}

// LoadFrom reads blob name from store into a new, fitted index.
func LoadFrom(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	var idx *Index
	err := blobstore.Read(ctx, store, name, func(r io.Reader) error {
		var err error
		idx, err = Load(ctx, r, optFns...)
		return err
	})
	// A failed load has no index, so the logger comes from optFns.
	applyOptions(optFns).logger.LogSnapshot(ctx, "load", name, err)
	return idx, err
}

func (idx *Index) restore(snap *persistence.IndexSnapshot) error {
	h, err := hnsw.FromSnapshot(snap.Graph)
	if err != nil {
		return translateError(err)
	}

	o := snap.Graph.Options
	idx.opts.dimension = o.Dimension
	idx.opts.metric = o.DistanceType
	idx.opts.m = o.M
	idx.opts.efConstruction = o.EFConstruction
	idx.opts.heuristic = o.Heuristic
	idx.opts.seed = o.RandomSeed
	if snap.EF >= 1 {
		idx.ef.Store(int64(snap.EF))
	}

	size := h.Size()
	if err := idx.opts.resource.ReserveMemory(size); err != nil {
		return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.reserved = size
	idx.engine.Store(h)
	return nil
}
