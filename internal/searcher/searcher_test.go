package searcher

import (
	"testing"

	"github.com/hupe1980/annbench/internal/queue"
	"github.com/stretchr/testify/assert"
)

func TestSearcher_Lifecycle(t *testing.T) {
	s := Get()

	s.Visited.Visit(1)
	s.Candidates.PushItem(queue.PriorityQueueItem{Distance: 1.0, Node: 100})
	s.ScratchCandidates.PushItem(queue.PriorityQueueItem{Distance: 2.0, Node: 200})
	s.Results = append(s.Results, queue.PriorityQueueItem{Distance: 1.0, Node: 1})
	s.OpsPerformed = 50

	assert.True(t, s.Visited.Visited(1))

	Put(s)

	s2 := Get()
	defer Put(s2)
	assert.False(t, s2.Visited.Visited(1))
	assert.Equal(t, 0, s2.Candidates.Len())
	assert.Equal(t, 0, s2.ScratchCandidates.Len())
	assert.Empty(t, s2.Results)
	assert.Equal(t, 0, s2.OpsPerformed)
}
