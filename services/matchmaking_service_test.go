package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agonlabs/arena-system/matchmaking"
	"github.com/agonlabs/arena-system/models"
)

func newTestMatchmaking(repo *fakeMatchRepo) MatchmakingService {
	return NewMatchmakingService(matchmaking.NewQueueStore(), repo, testBus(), testLogger())
}

func TestJoinQueueValidation(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "", JoinQueueInput{Arena: "the-pit", PrizePool: 10, MaxRounds: 3})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.JoinQueue(ctx, "agent-1", JoinQueueInput{PrizePool: 10, MaxRounds: 3})
	assert.ErrorIs(t, err, ErrArenaRequired)

	_, err = svc.JoinQueue(ctx, "agent-1", JoinQueueInput{Arena: "the-pit", MaxRounds: 3})
	assert.ErrorIs(t, err, ErrInvalidPrizePool)

	_, err = svc.JoinQueue(ctx, "agent-1", JoinQueueInput{Arena: "the-pit", PrizePool: 10})
	assert.ErrorIs(t, err, ErrInvalidMaxRounds)
}

func TestJoinQueueWaitsWhenAlone(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())

	result, err := svc.JoinQueue(context.Background(), "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, 1, result.Position)
	assert.Nil(t, result.Match)
	assert.False(t, result.AlreadyQueued)
}

func TestJoinQueuePairsCompatibleAgents(t *testing.T) {
	repo := newFakeMatchRepo()
	svc := newTestMatchmaking(repo)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "agent-2", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1510,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	match := result.Match
	assert.Equal(t, "the-pit", match.Arena)
	assert.Equal(t, models.MatchScheduled, match.Status)
	assert.Equal(t, int64(10), match.PrizePool)
	assert.Equal(t, "agent-2", match.Agent1ID)
	require.NotNil(t, match.Agent2ID)
	assert.Equal(t, "agent-1", *match.Agent2ID)

	// Both sides left the queue.
	status, err := svc.QueueStatus(ctx, "agent-1", "the-pit")
	require.NoError(t, err)
	assert.Nil(t, status.Entry)
	assert.Equal(t, 1, repo.count())
}

func TestJoinQueueDoesNotPairAcrossPrizePools(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "agent-2", JoinQueueInput{
		Arena: "the-pit", PrizePool: 50, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Match)
	assert.Equal(t, 2, result.Position)
}

func TestJoinQueuePrefersClosestRating(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())
	ctx := context.Background()

	for _, agent := range []struct {
		id     string
		rating int
	}{{"far", 1200}, {"close", 1480}} {
		_, err := svc.JoinQueue(ctx, agent.id, JoinQueueInput{
			Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: agent.rating,
		})
		require.NoError(t, err)
	}

	result, err := svc.JoinQueue(ctx, "agent-3", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	require.NotNil(t, result.Match.Agent2ID)
	assert.Equal(t, "close", *result.Match.Agent2ID)

	// The distant agent keeps waiting.
	status, err := svc.QueueStatus(ctx, "far", "the-pit")
	require.NoError(t, err)
	require.NotNil(t, status.Entry)
	assert.Equal(t, 1, status.Position)
}

func TestJoinQueueRepeatJoinIsIdempotent(t *testing.T) {
	repo := newFakeMatchRepo()
	svc := newTestMatchmaking(repo)
	ctx := context.Background()

	first, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	second, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)
	assert.True(t, second.AlreadyQueued)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Zero(t, repo.count())
}

func TestJoinQueueRestoresEntriesWhenPersistenceFails(t *testing.T) {
	repo := newFakeMatchRepo()
	repo.failOn = errStorageDown
	svc := newTestMatchmaking(repo)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	_, err = svc.JoinQueue(ctx, "agent-2", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1510,
	})
	require.ErrorIs(t, err, ErrPersistenceFailed)

	// Both agents are back in the queue and pair normally once storage heals.
	repo.failOn = nil
	status, err := svc.QueueStatus(ctx, "agent-1", "the-pit")
	require.NoError(t, err)
	require.NotNil(t, status.Entry)

	result, err := svc.JoinQueue(ctx, "agent-2", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1510,
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyQueued)
}

func TestConcurrentJoinsProduceSingleMatch(t *testing.T) {
	repo := newFakeMatchRepo()
	svc := newTestMatchmaking(repo)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "waiting", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	matches := make(chan *models.Match, 2)
	for _, agent := range []string{"rival-a", "rival-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			result, err := svc.JoinQueue(ctx, id, JoinQueueInput{
				Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
			})
			require.NoError(t, err)
			if result.Match != nil {
				matches <- result.Match
			}
		}(agent)
	}
	wg.Wait()
	close(matches)

	// Exactly one rival claims the waiting agent; the other stays queued or
	// pairs with nobody.
	var claimed int
	for m := range matches {
		if *m.Agent2ID == "waiting" || m.Agent1ID == "waiting" {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestLeaveQueueIsIdempotent(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	removed, err := svc.LeaveQueue(ctx, "agent-1", "the-pit")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "agent-1", removed.AgentID)

	removed, err = svc.LeaveQueue(ctx, "agent-1", "the-pit")
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestQueueStatusReportsStats(t *testing.T) {
	svc := newTestMatchmaking(newFakeMatchRepo())
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "agent-1", JoinQueueInput{
		Arena: "the-pit", PrizePool: 10, MaxRounds: 3, Rating: 1500,
	})
	require.NoError(t, err)

	status, err := svc.QueueStatus(ctx, "agent-1", "")
	require.NoError(t, err)
	require.NotNil(t, status.Entry)
	assert.Equal(t, 1, status.Position)
	require.Len(t, status.Stats, 1)
	assert.Equal(t, "the-pit", status.Stats[0].Arena)
	assert.Equal(t, 1, status.Stats[0].WaitingCount)
}
