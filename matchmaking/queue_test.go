package matchmaking

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAssignsPositionsInOrder(t *testing.T) {
	q := NewQueueStore()

	entry1, pos1, already1 := q.Enqueue("agent-1", "the-pit", 10, 3, 1500)
	require.NotNil(t, entry1)
	assert.Equal(t, 1, pos1)
	assert.False(t, already1)

	entry2, pos2, already2 := q.Enqueue("agent-2", "the-pit", 10, 3, 1510)
	require.NotNil(t, entry2)
	assert.Equal(t, 2, pos2)
	assert.False(t, already2)

	assert.NotEqual(t, entry1.ID, entry2.ID)
}

func TestEnqueueIsIdempotentPerAgent(t *testing.T) {
	q := NewQueueStore()

	first, _, _ := q.Enqueue("agent-1", "the-pit", 10, 3, 1500)

	// A repeat join, even for a different arena, returns the existing entry.
	second, pos, already := q.Enqueue("agent-1", "colosseum", 50, 5, 1500)
	assert.True(t, already)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "the-pit", second.Arena)
	assert.Equal(t, 1, pos)
}

func TestFindCandidatesFiltersAndSorts(t *testing.T) {
	q := NewQueueStore()

	q.Enqueue("close", "the-pit", 10, 3, 1490)
	q.Enqueue("far", "the-pit", 10, 3, 1300)
	q.Enqueue("wrong-pool", "the-pit", 50, 3, 1500)
	q.Enqueue("other-arena", "colosseum", 10, 3, 1500)
	q.Enqueue("self", "the-pit", 10, 3, 1500)

	candidates := q.FindCandidates("the-pit", 10, "self", 1500)
	require.Len(t, candidates, 2)
	assert.Equal(t, "close", candidates[0].AgentID)
	assert.Equal(t, "far", candidates[1].AgentID)
}

func TestFindCandidatesRatingTieBreaksByJoinTime(t *testing.T) {
	q := NewQueueStore()

	q.Enqueue("older", "the-pit", 10, 3, 1490)
	q.Enqueue("newer", "the-pit", 10, 3, 1510)

	candidates := q.FindCandidates("the-pit", 10, "self", 1500)
	require.Len(t, candidates, 2)
	assert.Equal(t, "older", candidates[0].AgentID)
}

func TestRemoveByAgent(t *testing.T) {
	q := NewQueueStore()
	q.Enqueue("agent-1", "the-pit", 10, 3, 1500)

	removed := q.RemoveByAgent("agent-1", "the-pit")
	require.NotNil(t, removed)
	assert.Equal(t, "agent-1", removed.AgentID)
	assert.Equal(t, 0, q.Position("agent-1"))

	// Second removal is a no-op.
	assert.Nil(t, q.RemoveByAgent("agent-1", "the-pit"))
}

func TestRemoveByAgentRespectsArenaFilter(t *testing.T) {
	q := NewQueueStore()
	q.Enqueue("agent-1", "the-pit", 10, 3, 1500)

	assert.Nil(t, q.RemoveByAgent("agent-1", "colosseum"))
	assert.Equal(t, 1, q.Position("agent-1"))
}

func TestRestoreRollsBackWithoutDuplicating(t *testing.T) {
	q := NewQueueStore()
	entry, _, _ := q.Enqueue("agent-1", "the-pit", 10, 3, 1500)

	removed := q.RemoveByID(entry.ID)
	require.NotNil(t, removed)

	q.Restore(removed)
	assert.Equal(t, 1, q.Position("agent-1"))

	// Restoring an entry that is already queued must not add a second copy.
	q.Restore(removed)
	stats := q.Stats("the-pit")
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].WaitingCount)
}

func TestStatsReportsAllArenasSorted(t *testing.T) {
	q := NewQueueStore()
	q.Enqueue("a", "the-pit", 10, 3, 1500)
	q.Enqueue("b", "the-pit", 10, 3, 1510)
	q.Enqueue("c", "colosseum", 50, 5, 1400)

	stats := q.Stats("")
	require.Len(t, stats, 2)
	assert.Equal(t, "colosseum", stats[0].Arena)
	assert.Equal(t, 1, stats[0].WaitingCount)
	assert.Equal(t, "the-pit", stats[1].Arena)
	assert.Equal(t, 2, stats[1].WaitingCount)
	require.NotNil(t, stats[1].OldestJoin)
}

func TestConcurrentEnqueueKeepsSingleEntryPerAgent(t *testing.T) {
	q := NewQueueStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			arena := fmt.Sprintf("arena-%d", n%5)
			q.Enqueue("agent-1", arena, 10, 3, 1500)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, st := range q.Stats("") {
		total += st.WaitingCount
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, q.Position("agent-1"))
}
