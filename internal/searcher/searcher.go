package searcher

import (
	"sync"

	"github.com/hupe1980/annbench/internal/queue"
	"github.com/hupe1980/annbench/internal/visited"
	"github.com/hupe1980/annbench/model"
)

// Searcher is a reusable execution context for a single graph traversal.
// It owns all scratch memory required for search, eliminating heap allocations
// in the steady state.
//
// Searcher is NOT thread-safe. It is intended to be owned by a single goroutine
// during a search operation.
type Searcher struct {
	// Visited tracks visited nodes during graph traversal.
	Visited *visited.VisitedSet

	// Candidates is a max-heap holding the best results found so far (bounded by ef).
	Candidates *queue.PriorityQueue

	// ScratchCandidates is a min-heap of the frontier still to be explored.
	ScratchCandidates *queue.PriorityQueue

	// ScratchVec is a reusable buffer for query preparation (normalization).
	ScratchVec []float32

	// Results is a reusable buffer for sorted results.
	Results []queue.PriorityQueueItem

	// Matches holds the ids whose stored vector equals the query.
	Matches []model.ID

	// OpsPerformed counts distance computations.
	OpsPerformed int
}

var searcherPool = sync.Pool{
	New: func() any {
		return NewSearcher(1024, 128)
	},
}

// NewSearcher creates a new searcher with the given initial capacities.
func NewSearcher(visitedCap, queueCap int) *Searcher {
	return &Searcher{
		Visited:           visited.New(visitedCap),
		Candidates:        queue.NewMax(queueCap), // keeps the ef closest, evicts the farthest
		ScratchCandidates: queue.NewMin(queueCap), // explores the closest first
		Results:           make([]queue.PriorityQueueItem, 0, queueCap),
	}
}

// Get returns a Searcher from the pool.
func Get() *Searcher {
	s := searcherPool.Get().(*Searcher)
	s.Reset()
	return s
}

// Put returns a Searcher to the pool.
func Put(s *Searcher) {
	searcherPool.Put(s)
}

// Reset clears the searcher state for reuse without freeing memory.
func (s *Searcher) Reset() {
	s.Visited.Reset()
	s.Candidates.Reset()
	s.ScratchCandidates.Reset()
	s.Results = s.Results[:0]
	s.Matches = s.Matches[:0]
	s.OpsPerformed = 0
}
