package annbench

// Close releases the vector store and graph and returns their memory
// reservation to the resource controller. Queries after Close fail with
// ErrClosed. Close is idempotent.
func (idx *Index) Close() error {
	if idx == nil {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed.Swap(true) {
		return nil
	}
	idx.engine.Store(nil)
	idx.opts.resource.ReleaseMemory(idx.reserved)
	idx.reserved = 0

	idx.batchMu.Lock()
	idx.batchResults = nil
	idx.batchMu.Unlock()
	return nil
}
