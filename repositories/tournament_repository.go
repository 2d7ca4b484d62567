package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agonlabs/arena-system/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrStaleStatus        = errors.New("tournament status changed concurrently")
)

type ListTournamentsFilter struct {
	Arena  *string
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, id string) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// UpdateStatus performs a guarded transition: the row is only updated when
	// its status still equals from, so two racing engine calls cannot both win.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id string, from, to models.TournamentStatus) error
	UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id string, round int) error
	UpdateWinner(ctx context.Context, exec SQLExecutor, id string, winnerAgentID *string) error
	UpdateLogoKey(ctx context.Context, id string, logoKey *string) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (id, name, arena, status, max_participants, current_round, logo_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	return executor.QueryRowContext(ctx, query,
		t.ID, t.Name, t.Arena, t.Status, t.MaxParticipants, t.CurrentRound, t.LogoKey,
	).Scan(&t.CreatedAt)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id string) (*models.Tournament, error) {
	query := `
		SELECT id, name, arena, status, max_participants, current_round,
		       winner_agent_id, logo_key, created_at
		FROM tournaments
		WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Arena, &t.Status, &t.MaxParticipants, &t.CurrentRound,
		&t.WinnerAgentID, &t.LogoKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `
		SELECT id, name, arena, status, max_participants, current_round,
		       winner_agent_id, logo_key, created_at
		FROM tournaments
		WHERE 1=1`

	args := []any{}
	argID := 1

	if filter.Arena != nil {
		query += fmt.Sprintf(" AND arena = $%d", argID)
		args = append(args, *filter.Arena)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := []models.Tournament{}
	for rows.Next() {
		var t models.Tournament
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Arena, &t.Status, &t.MaxParticipants, &t.CurrentRound,
			&t.WinnerAgentID, &t.LogoKey, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id string, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleStatus)
}

func (r *postgresTournamentRepository) UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id string, round int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET current_round = $1 WHERE id = $2`, round, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateWinner(ctx context.Context, exec SQLExecutor, id string, winnerAgentID *string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET winner_agent_id = $1 WHERE id = $2`, winnerAgentID, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateLogoKey(ctx context.Context, id string, logoKey *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tournaments SET logo_key = $1 WHERE id = $2`, logoKey, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
