package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agonlabs/arena-system/models"
)

var ErrEntryNotFound = errors.New("tournament entry not found")

type TournamentEntryRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.TournamentEntry) error
	ListByTournament(ctx context.Context, tournamentID string) ([]models.TournamentEntry, error)
	GetByTournamentAndAgent(ctx context.Context, tournamentID, agentID string) (*models.TournamentEntry, error)
	CountByTournament(ctx context.Context, tournamentID string) (int, error)
	SetEliminatedRound(ctx context.Context, exec SQLExecutor, tournamentID, agentID string, round int) error
}

type postgresEntryRepository struct {
	db *sql.DB
}

func NewPostgresEntryRepository(db *sql.DB) TournamentEntryRepository {
	return &postgresEntryRepository{db: db}
}

func (r *postgresEntryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresEntryRepository) Create(ctx context.Context, exec SQLExecutor, e *models.TournamentEntry) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_entries (id, tournament_id, agent_id, seed)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return executor.QueryRowContext(ctx, query,
		e.ID, e.TournamentID, e.AgentID, e.Seed,
	).Scan(&e.CreatedAt)
}

func (r *postgresEntryRepository) ListByTournament(ctx context.Context, tournamentID string) ([]models.TournamentEntry, error) {
	query := `
		SELECT id, tournament_id, agent_id, seed, eliminated_round, created_at
		FROM tournament_entries
		WHERE tournament_id = $1
		ORDER BY seed`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.TournamentEntry{}
	for rows.Next() {
		var e models.TournamentEntry
		if err := rows.Scan(&e.ID, &e.TournamentID, &e.AgentID, &e.Seed, &e.EliminatedRound, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *postgresEntryRepository) GetByTournamentAndAgent(ctx context.Context, tournamentID, agentID string) (*models.TournamentEntry, error) {
	query := `
		SELECT id, tournament_id, agent_id, seed, eliminated_round, created_at
		FROM tournament_entries
		WHERE tournament_id = $1 AND agent_id = $2`

	e := &models.TournamentEntry{}
	err := r.db.QueryRowContext(ctx, query, tournamentID, agentID).Scan(
		&e.ID, &e.TournamentID, &e.AgentID, &e.Seed, &e.EliminatedRound, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *postgresEntryRepository) CountByTournament(ctx context.Context, tournamentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_entries WHERE tournament_id = $1`, tournamentID,
	).Scan(&count)
	return count, err
}

func (r *postgresEntryRepository) SetEliminatedRound(ctx context.Context, exec SQLExecutor, tournamentID, agentID string, round int) error {
	executor := r.getExecutor(exec)
	// eliminated_round is written once; a second write for the same entry is a no-op.
	result, err := executor.ExecContext(ctx, `
		UPDATE tournament_entries
		SET eliminated_round = $1
		WHERE tournament_id = $2 AND agent_id = $3 AND eliminated_round IS NULL`,
		round, tournamentID, agentID)
	if err != nil {
		return err
	}
	// Zero affected rows means the entry was already eliminated, which the
	// idempotent sync path treats as done.
	_, err = result.RowsAffected()
	return err
}
