package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agonlabs/arena-system/brackets"
	"github.com/agonlabs/arena-system/events"
	"github.com/agonlabs/arena-system/models"
	"github.com/agonlabs/arena-system/repositories"
	"github.com/agonlabs/arena-system/storage"
)

// defaultBracketMatchRounds is the per-match round count used for bracket
// matches; ad-hoc queue matches carry their own.
const defaultBracketMatchRounds = 3

type CreateTournamentInput struct {
	Name            string   `json:"name"`
	Arena           string   `json:"arena"`
	MaxParticipants int      `json:"max_participants"`
	SeedAgentIDs    []string `json:"seed_agent_ids,omitempty"`
}

type JoinTournamentResult struct {
	Entry         *models.TournamentEntry `json:"entry"`
	AlreadyJoined bool                    `json:"already_joined"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	Join(ctx context.Context, tournamentID, agentID string) (*JoinTournamentResult, error)
	Start(ctx context.Context, tournamentID string) (*models.Tournament, error)
	SyncRound(ctx context.Context, tournamentID string) (*models.Tournament, error)
	SyncAllLive(ctx context.Context) error
	GetByID(ctx context.Context, tournamentID string) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	UploadLogo(ctx context.Context, tournamentID, contentType string, file io.Reader) (*models.Tournament, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	entryRepo      repositories.TournamentEntryRepository
	matchRepo      repositories.MatchRepository
	hub            *brackets.Hub
	bus            *events.Bus
	uploader       storage.FileUploader
	logger         *slog.Logger

	// tournMu wraps every read-modify-write on one tournament's bracket state
	// in a single atomic unit per tournament id.
	mu      sync.Mutex
	tournMu map[string]*sync.Mutex
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.TournamentEntryRepository,
	matchRepo repositories.MatchRepository,
	hub *brackets.Hub,
	bus *events.Bus,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		entryRepo:      entryRepo,
		matchRepo:      matchRepo,
		hub:            hub,
		bus:            bus,
		uploader:       uploader,
		logger:         logger,
		tournMu:        make(map[string]*sync.Mutex),
	}
}

func (s *tournamentService) lock(tournamentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tournMu[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		s.tournMu[tournamentID] = l
	}
	return l
}

func roomID(tournamentID string) string {
	return "tournament_" + tournamentID
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	if input.Arena == "" {
		return nil, ErrArenaRequired
	}
	if input.MaxParticipants < 2 {
		return nil, ErrInvalidCapacity
	}
	if len(input.SeedAgentIDs) > input.MaxParticipants {
		return nil, ErrTooManySeedEntrants
	}
	seen := make(map[string]bool, len(input.SeedAgentIDs))
	for _, agentID := range input.SeedAgentIDs {
		if agentID == "" {
			return nil, fmt.Errorf("%w: empty agent id in seed entrants", ErrValidationFailed)
		}
		if seen[agentID] {
			return nil, fmt.Errorf("%w: agent %s listed twice", ErrDuplicateEntrant, agentID)
		}
		seen[agentID] = true
	}

	tournament := &models.Tournament{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Arena:           input.Arena,
		Status:          models.TournamentOpen,
		MaxParticipants: input.MaxParticipants,
	}
	if err := s.tournamentRepo.Create(ctx, nil, tournament); err != nil {
		return nil, fmt.Errorf("%w: create tournament: %w", ErrPersistenceFailed, err)
	}

	for i, agentID := range input.SeedAgentIDs {
		entry := &models.TournamentEntry{
			ID:           uuid.NewString(),
			TournamentID: tournament.ID,
			AgentID:      agentID,
			Seed:         i + 1,
		}
		if err := s.entryRepo.Create(ctx, nil, entry); err != nil {
			return nil, fmt.Errorf("%w: register seed entrant %s: %w", ErrPersistenceFailed, agentID, err)
		}
		tournament.Entries = append(tournament.Entries, *entry)
	}

	s.logger.Info("tournament created",
		slog.String("tournament_id", tournament.ID),
		slog.String("arena", tournament.Arena),
		slog.Int("pre_registered", len(tournament.Entries)))
	return tournament, nil
}

func (s *tournamentService) Join(ctx context.Context, tournamentID, agentID string) (*JoinTournamentResult, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrValidationFailed)
	}

	l := s.lock(tournamentID)
	l.Lock()
	defer l.Unlock()

	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentOpen {
		return nil, ErrTournamentNotOpen
	}

	existing, err := s.entryRepo.GetByTournamentAndAgent(ctx, tournamentID, agentID)
	if err != nil && !errors.Is(err, repositories.ErrEntryNotFound) {
		return nil, fmt.Errorf("%w: look up entry: %w", ErrPersistenceFailed, err)
	}
	if existing != nil {
		return &JoinTournamentResult{Entry: existing, AlreadyJoined: true}, nil
	}

	count, err := s.entryRepo.CountByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: count entries: %w", ErrPersistenceFailed, err)
	}
	if count >= tournament.MaxParticipants {
		return nil, ErrTournamentFull
	}

	entry := &models.TournamentEntry{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		AgentID:      agentID,
		Seed:         count + 1,
	}
	if err := s.entryRepo.Create(ctx, nil, entry); err != nil {
		return nil, fmt.Errorf("%w: register entrant: %w", ErrPersistenceFailed, err)
	}

	s.logger.Info("agent joined tournament",
		slog.String("tournament_id", tournamentID),
		slog.String("agent_id", agentID),
		slog.Int("seed", entry.Seed))
	return &JoinTournamentResult{Entry: entry}, nil
}

func (s *tournamentService) Start(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	l := s.lock(tournamentID)
	l.Lock()
	defer l.Unlock()

	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentOpen {
		return nil, ErrTournamentNotOpen
	}

	entries, err := s.entryRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %w", ErrPersistenceFailed, err)
	}
	if len(entries) < 2 {
		return nil, ErrNotEnoughEntrants
	}

	// The guarded transition is the commit point: only one caller can move the
	// tournament out of open, so round-1 matches are generated exactly once.
	if err := s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.TournamentOpen, models.TournamentLive); err != nil {
		if errors.Is(err, repositories.ErrStaleStatus) {
			return nil, ErrTournamentNotOpen
		}
		return nil, fmt.Errorf("%w: start tournament: %w", ErrPersistenceFailed, err)
	}

	pairings := brackets.SeedRound1(entries)
	if err := s.createRoundMatches(ctx, tournament, 1, pairings); err != nil {
		return nil, err
	}
	if err := s.tournamentRepo.UpdateCurrentRound(ctx, nil, tournamentID, 1); err != nil {
		return nil, fmt.Errorf("%w: advance to round 1: %w", ErrPersistenceFailed, err)
	}
	tournament.Status = models.TournamentLive
	tournament.CurrentRound = 1

	s.logger.Info("tournament started",
		slog.String("tournament_id", tournamentID),
		slog.Int("entrants", len(entries)),
		slog.Int("round1_matches", len(pairings)))
	s.hub.BroadcastToRoom(roomID(tournamentID), brackets.MsgTournamentStarted, tournament)

	return s.GetByID(ctx, tournamentID)
}

// SyncRound inspects the tournament's current round and, once every match in
// it is terminal, eliminates the losers and generates the next round (or
// completes the tournament). Polling it repeatedly is safe: while any match is
// still running it returns the current state unchanged.
func (s *tournamentService) SyncRound(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	l := s.lock(tournamentID)
	l.Lock()
	defer l.Unlock()

	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	switch {
	case tournament.Status.Terminal():
		// Nothing left to sync; not an error.
		return s.GetByID(ctx, tournamentID)
	case tournament.Status != models.TournamentLive:
		return nil, ErrTournamentNotLive
	}

	matches, err := s.matchRepo.ListByTournamentRound(ctx, tournamentID, tournament.CurrentRound)
	if err != nil {
		return nil, fmt.Errorf("%w: list round matches: %w", ErrPersistenceFailed, err)
	}
	for _, m := range matches {
		if !m.Status.Terminal() {
			return s.GetByID(ctx, tournamentID)
		}
	}

	// Matches arrive ordered by slot; winners pair adjacently in that order.
	winners := make([]string, 0, len(matches))
	for _, m := range matches {
		advancer := advancerOf(m)
		for _, agentID := range matchAgents(m) {
			if advancer == nil || agentID != *advancer {
				if err := s.entryRepo.SetEliminatedRound(ctx, nil, tournamentID, agentID, tournament.CurrentRound); err != nil {
					return nil, fmt.Errorf("%w: eliminate agent %s: %w", ErrPersistenceFailed, agentID, err)
				}
			}
		}
		if advancer != nil {
			winners = append(winners, *advancer)
		}
	}

	finishedRound := tournament.CurrentRound
	switch len(winners) {
	case 0:
		// Every remaining agent cancelled; nobody can be promoted.
		if err := s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.TournamentLive, models.TournamentCancelled); err != nil {
			return nil, fmt.Errorf("%w: cancel tournament: %w", ErrPersistenceFailed, err)
		}
		s.logger.Warn("tournament cancelled, no survivors",
			slog.String("tournament_id", tournamentID),
			slog.Int("round", finishedRound))
		s.hub.BroadcastToRoom(roomID(tournamentID), brackets.MsgBracketUpdated, map[string]any{
			"tournament_id": tournamentID,
			"status":        models.TournamentCancelled,
		})
	case 1:
		winner := winners[0]
		if err := s.tournamentRepo.UpdateWinner(ctx, nil, tournamentID, &winner); err != nil {
			return nil, fmt.Errorf("%w: record winner: %w", ErrPersistenceFailed, err)
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.TournamentLive, models.TournamentCompleted); err != nil {
			return nil, fmt.Errorf("%w: complete tournament: %w", ErrPersistenceFailed, err)
		}
		s.logger.Info("tournament completed",
			slog.String("tournament_id", tournamentID),
			slog.String("winner_agent_id", winner),
			slog.Int("rounds", finishedRound))
		s.hub.BroadcastToRoom(roomID(tournamentID), brackets.MsgTournamentCompleted, map[string]any{
			"tournament_id":   tournamentID,
			"winner_agent_id": winner,
		})
	default:
		nextRound := finishedRound + 1
		pairings := brackets.PairWinners(winners)
		if err := s.createRoundMatches(ctx, tournament, nextRound, pairings); err != nil {
			return nil, err
		}
		if err := s.tournamentRepo.UpdateCurrentRound(ctx, nil, tournamentID, nextRound); err != nil {
			return nil, fmt.Errorf("%w: advance round: %w", ErrPersistenceFailed, err)
		}
		s.logger.Info("round advanced",
			slog.String("tournament_id", tournamentID),
			slog.Int("round", nextRound),
			slog.Int("matches", len(pairings)))
		s.hub.BroadcastToRoom(roomID(tournamentID), brackets.MsgBracketUpdated, map[string]any{
			"tournament_id": tournamentID,
			"round":         nextRound,
		})
	}

	// Let each finished match's stream know the bracket moved on.
	for _, m := range matches {
		s.bus.Publish(m.ID, models.EventRoundAdvance, map[string]any{
			"tournament_id":  tournamentID,
			"finished_round": finishedRound,
		})
	}

	return s.GetByID(ctx, tournamentID)
}

// SyncAllLive runs SyncRound for every live tournament; used by the polling
// scheduler. Individual failures are logged and do not stop the sweep.
func (s *tournamentService) SyncAllLive(ctx context.Context) error {
	status := models.TournamentLive
	live, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{Status: &status})
	if err != nil {
		return fmt.Errorf("%w: list live tournaments: %w", ErrPersistenceFailed, err)
	}
	for _, t := range live {
		if _, err := s.SyncRound(ctx, t.ID); err != nil {
			s.logger.Error("scheduled round sync failed",
				slog.String("tournament_id", t.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *tournamentService) createRoundMatches(ctx context.Context, tournament *models.Tournament, round int, pairings []brackets.Pairing) error {
	for _, p := range pairings {
		match := &models.Match{
			ID:           uuid.NewString(),
			Arena:        tournament.Arena,
			TournamentID: &tournament.ID,
			Round:        &round,
			Slot:         &p.Slot,
			Agent1ID:     p.Agent1,
			Agent2ID:     p.Agent2,
			MaxRounds:    defaultBracketMatchRounds,
			Status:       models.MatchScheduled,
		}
		if p.Agent2 == nil {
			// A bye never plays; the lone agent advances immediately.
			match.Status = models.MatchCompleted
			match.WinnerAgentID = &p.Agent1
		}
		if err := s.matchRepo.Create(ctx, nil, match); err != nil {
			return fmt.Errorf("%w: create round %d match: %w", ErrPersistenceFailed, round, err)
		}
	}
	return nil
}

// GetByID assembles the tournament with its entries and matches fetched in
// parallel.
func (s *tournamentService) GetByID(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.entryRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("fetch entries: %w", err)
		}
		tournament.Entries = entries
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("fetch matches: %w", err)
		}
		tournament.Matches = make([]models.Match, 0, len(matches))
		for _, m := range matches {
			tournament.Matches = append(tournament.Matches, *m)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	s.attachLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list tournaments: %w", ErrPersistenceFailed, err)
	}
	for i := range tournaments {
		s.attachLogoURL(&tournaments[i])
	}
	return tournaments, nil
}

func (s *tournamentService) UploadLogo(ctx context.Context, tournamentID, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, ErrStorageNotConfigured
	}
	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tournaments/%s/logo", tournamentID)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("upload logo: %w", err)
	}
	if err := s.tournamentRepo.UpdateLogoKey(ctx, tournamentID, &key); err != nil {
		return nil, fmt.Errorf("%w: save logo key: %w", ErrPersistenceFailed, err)
	}
	tournament.LogoKey = &key
	s.attachLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) attachLogoURL(t *models.Tournament) {
	if s.uploader == nil || t.LogoKey == nil {
		return
	}
	if u := s.uploader.GetPublicURL(*t.LogoKey); u != "" {
		t.LogoURL = &u
	}
}

func (s *tournamentService) getTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("%w: fetch tournament: %w", ErrPersistenceFailed, err)
	}
	return tournament, nil
}

// advancerOf applies the advancement policy to a terminal match. A completed
// match promotes its recorded winner. For a cancelled match the non-cancelling
// agent advances; a double cancel (no CancelledByID recorded for a two-agent
// match, or a cancelled bye) promotes no one.
func advancerOf(m *models.Match) *string {
	switch m.Status {
	case models.MatchCompleted:
		return m.WinnerAgentID
	case models.MatchCancelled:
		if m.Agent2ID == nil || m.CancelledByID == nil {
			return nil
		}
		if *m.CancelledByID == m.Agent1ID {
			return m.Agent2ID
		}
		if *m.CancelledByID == *m.Agent2ID {
			return &m.Agent1ID
		}
		return nil
	default:
		return nil
	}
}

func matchAgents(m *models.Match) []string {
	agents := []string{m.Agent1ID}
	if m.Agent2ID != nil {
		agents = append(agents, *m.Agent2ID)
	}
	return agents
}
