// Package annbench provides an HNSW approximate nearest-neighbor index behind
// the contract ANN benchmarking harnesses expect.
//
// An Index is built exactly once and is read-only afterwards, so any number of
// goroutines may query it concurrently.
//
// # Quick Start
//
//	idx, _ := annbench.New(
//	    annbench.WithMetric(annbench.MetricCosine),
//	    annbench.WithM(16),
//	    annbench.WithEFConstruction(200),
//	)
//	defer idx.Close()
//
//	_ = idx.Fit(ctx, vectors)        // labels are the row numbers 0..N-1
//	_ = idx.SetSearchWidth(50)       // ef, must be >= k
//	labels, _ := idx.Query(ctx, q, 10)
//
// # Batch Queries
//
// BatchQuery fans the queries out over a bounded worker pool and keeps the
// results aligned with the input:
//
//	_ = idx.BatchQuery(ctx, queries, 10)
//	for i, labels := range idx.BatchResults() {
//	    fmt.Println(i, labels)
//	}
//
// # Persistence
//
// A fitted index can be saved to any io.Writer or blobstore.Store and loaded back:
//
//	_ = idx.SaveTo(ctx, blobstore.NewLocalStore("./indexes"), "glove.annb",
//	    persistence.WithCompression(persistence.CompressionZSTD))
//	idx2, _ := annbench.LoadFrom(ctx, store, "glove.annb")
//
// # Errors
//
// All errors match one of the package sentinels with errors.Is (ErrInvalidArgument,
// ErrAlreadyFitted, ErrNotFitted, ...) or *ErrDimensionMismatch with errors.As.
package annbench
