package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agonlabs/arena-system/models"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	ListByTournamentRound(ctx context.Context, tournamentID string, round int) ([]*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID string) ([]*models.Match, error)
	UpdateSpectatorCount(ctx context.Context, id string, count int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, arena, tournament_id, round, slot, agent1_id, agent2_id,
	prize_pool, max_rounds, status, winner_agent_id, cancelled_by_id,
	spectator_count, created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			id, arena, tournament_id, round, slot, agent1_id, agent2_id,
			prize_pool, max_rounds, status, winner_agent_id, cancelled_by_id, spectator_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	return executor.QueryRowContext(ctx, query,
		m.ID, m.Arena, m.TournamentID, m.Round, m.Slot, m.Agent1ID, m.Agent2ID,
		m.PrizePool, m.MaxRounds, m.Status, m.WinnerAgentID, m.CancelledByID, m.SpectatorCount,
	).Scan(&m.CreatedAt)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Arena, &m.TournamentID, &m.Round, &m.Slot, &m.Agent1ID, &m.Agent2ID,
		&m.PrizePool, &m.MaxRounds, &m.Status, &m.WinnerAgentID, &m.CancelledByID,
		&m.SpectatorCount, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournamentRound(ctx context.Context, tournamentID string, round int) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND round = $2
		ORDER BY slot`
	return r.list(ctx, query, tournamentID, round)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID string) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1
		ORDER BY round, slot`
	return r.list(ctx, query, tournamentID)
}

func (r *postgresMatchRepository) list(ctx context.Context, query string, args ...any) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []*models.Match{}
	for rows.Next() {
		m := &models.Match{}
		if err := rows.Scan(
			&m.ID, &m.Arena, &m.TournamentID, &m.Round, &m.Slot, &m.Agent1ID, &m.Agent2ID,
			&m.PrizePool, &m.MaxRounds, &m.Status, &m.WinnerAgentID, &m.CancelledByID,
			&m.SpectatorCount, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) UpdateSpectatorCount(ctx context.Context, id string, count int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE matches SET spectator_count = $1 WHERE id = $2`, count, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}
