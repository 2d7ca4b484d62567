package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/agonlabs/arena-system/events"
	"github.com/agonlabs/arena-system/matchmaking"
	"github.com/agonlabs/arena-system/models"
	"github.com/agonlabs/arena-system/repositories"
)

type JoinQueueInput struct {
	Arena     string `json:"arena"`
	PrizePool int64  `json:"prize_pool"`
	MaxRounds int    `json:"max_rounds"`
	Rating    int    `json:"rating"`
}

// JoinQueueResult carries either a committed match (immediate pairing) or the
// caller's queue entry and position.
type JoinQueueResult struct {
	Entry         *models.QueueEntry `json:"entry,omitempty"`
	Position      int                `json:"position,omitempty"`
	AlreadyQueued bool               `json:"already_queued"`
	Match         *models.Match      `json:"match,omitempty"`
}

type QueueStatusResult struct {
	Entry    *models.QueueEntry  `json:"entry,omitempty"`
	Position int                 `json:"position,omitempty"`
	Stats    []models.QueueStats `json:"stats"`
}

type MatchmakingService interface {
	JoinQueue(ctx context.Context, agentID string, input JoinQueueInput) (*JoinQueueResult, error)
	LeaveQueue(ctx context.Context, agentID, arena string) (*models.QueueEntry, error)
	QueueStatus(ctx context.Context, agentID, arena string) (*QueueStatusResult, error)
}

type matchmakingService struct {
	queue     *matchmaking.QueueStore
	matchRepo repositories.MatchRepository
	bus       *events.Bus
	logger    *slog.Logger

	// pairMu serializes the check-then-commit pairing section per arena, so two
	// concurrent joins can never both claim the same waiting entry.
	mu     sync.Mutex
	pairMu map[string]*sync.Mutex
}

func NewMatchmakingService(
	queue *matchmaking.QueueStore,
	matchRepo repositories.MatchRepository,
	bus *events.Bus,
	logger *slog.Logger,
) MatchmakingService {
	return &matchmakingService{
		queue:     queue,
		matchRepo: matchRepo,
		bus:       bus,
		logger:    logger,
		pairMu:    make(map[string]*sync.Mutex),
	}
}

func (s *matchmakingService) arenaLock(arena string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pairMu[arena]
	if !ok {
		l = &sync.Mutex{}
		s.pairMu[arena] = l
	}
	return l
}

func (s *matchmakingService) JoinQueue(ctx context.Context, agentID string, input JoinQueueInput) (*JoinQueueResult, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrValidationFailed)
	}
	if input.Arena == "" {
		return nil, ErrArenaRequired
	}
	if input.PrizePool <= 0 {
		return nil, ErrInvalidPrizePool
	}
	if input.MaxRounds <= 0 {
		return nil, ErrInvalidMaxRounds
	}

	lock := s.arenaLock(input.Arena)
	lock.Lock()

	entry, position, alreadyQueued := s.queue.Enqueue(agentID, input.Arena, input.PrizePool, input.MaxRounds, input.Rating)
	if alreadyQueued {
		lock.Unlock()
		return &JoinQueueResult{Entry: entry, Position: position, AlreadyQueued: true}, nil
	}

	candidates := s.queue.FindCandidates(input.Arena, input.PrizePool, agentID, input.Rating)
	if len(candidates) == 0 {
		lock.Unlock()
		return &JoinQueueResult{Entry: entry, Position: position}, nil
	}

	// Tentatively claim both entries before touching persistence; the lock is
	// not held across the write-through below.
	opponent := s.queue.RemoveByID(candidates[0].ID)
	own := s.queue.RemoveByID(entry.ID)
	lock.Unlock()

	if opponent == nil || own == nil {
		// Lost a race with an explicit leave; put back whichever side survived.
		s.queue.Restore(opponent)
		s.queue.Restore(own)
		return &JoinQueueResult{Entry: entry, Position: s.queue.Position(agentID)}, nil
	}

	agent2 := opponent.AgentID
	match := &models.Match{
		ID:        uuid.NewString(),
		Arena:     input.Arena,
		Agent1ID:  agentID,
		Agent2ID:  &agent2,
		PrizePool: input.PrizePool,
		MaxRounds: input.MaxRounds,
		Status:    models.MatchScheduled,
	}

	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		s.queue.Restore(opponent)
		s.queue.Restore(own)
		s.logger.Error("match creation failed, queue entries restored",
			slog.String("arena", input.Arena),
			slog.String("agent_id", agentID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: create match: %w", ErrPersistenceFailed, err)
	}

	s.logger.Info("match committed from queue",
		slog.String("match_id", match.ID),
		slog.String("arena", match.Arena),
		slog.String("agent1_id", match.Agent1ID),
		slog.String("agent2_id", agent2))

	s.bus.Publish(match.ID, models.EventMatchFound, match)

	return &JoinQueueResult{Match: match}, nil
}

func (s *matchmakingService) LeaveQueue(ctx context.Context, agentID, arena string) (*models.QueueEntry, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrValidationFailed)
	}
	removed := s.queue.RemoveByAgent(agentID, arena)
	if removed != nil {
		s.logger.Info("agent left queue",
			slog.String("agent_id", agentID),
			slog.String("arena", removed.Arena))
	}
	// A missing entry is not an error: leaving twice is idempotent.
	return removed, nil
}

func (s *matchmakingService) QueueStatus(ctx context.Context, agentID, arena string) (*QueueStatusResult, error) {
	result := &QueueStatusResult{Stats: s.queue.Stats(arena)}
	if agentID != "" {
		if entry := s.queue.EntryByAgent(agentID); entry != nil {
			result.Entry = entry
			result.Position = s.queue.Position(agentID)
		}
	}
	return result, nil
}
