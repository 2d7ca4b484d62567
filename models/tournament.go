package models

import "time"

// TournamentStatus represents tournament lifecycle states, matching the ENUM in the DB.
type TournamentStatus string

const (
	TournamentOpen      TournamentStatus = "open"
	TournamentLive      TournamentStatus = "live"
	TournamentCompleted TournamentStatus = "completed"
	TournamentCancelled TournamentStatus = "cancelled"
)

// CanTransitionTo reports whether a status change is legal. Transitions are
// monotonic: open → live|cancelled, live → completed|cancelled; terminal
// states never transition.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	switch s {
	case TournamentOpen:
		return next == TournamentLive || next == TournamentCancelled
	case TournamentLive:
		return next == TournamentCompleted || next == TournamentCancelled
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s TournamentStatus) Terminal() bool {
	return s == TournamentCompleted || s == TournamentCancelled
}

// Tournament is a single-elimination competition container scoped to one arena.
type Tournament struct {
	ID              string           `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Arena           string           `json:"arena" db:"arena"`
	Status          TournamentStatus `json:"status" db:"status"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	CurrentRound    int              `json:"current_round" db:"current_round"`
	WinnerAgentID   *string          `json:"winner_agent_id,omitempty" db:"winner_agent_id"`
	LogoKey         *string          `json:"-" db:"logo_key"`
	LogoURL         *string          `json:"logo_url,omitempty" db:"-"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`

	// Optional related entities, not mapped directly.
	Entries []TournamentEntry `json:"entries,omitempty" db:"-"`
	Matches []Match           `json:"matches,omitempty" db:"-"`
}

// TournamentEntry is one participant's slot in a tournament bracket. Seeds are
// contiguous and unique per tournament; EliminatedRound, once set, never changes.
type TournamentEntry struct {
	ID              string    `json:"id" db:"id"`
	TournamentID    string    `json:"tournament_id" db:"tournament_id"`
	AgentID         string    `json:"agent_id" db:"agent_id"`
	Seed            int       `json:"seed" db:"seed"`
	EliminatedRound *int      `json:"eliminated_round,omitempty" db:"eliminated_round"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
