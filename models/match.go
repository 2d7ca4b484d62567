package models

import "time"

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

// Terminal reports whether the match can no longer change outcome.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// Match is a timed contest between two agents. Agent2ID is nil for a bye, where
// Agent1ID advances without contest. Round and Slot are set only for matches
// that belong to a tournament bracket.
type Match struct {
	ID             string      `json:"id" db:"id"`
	Arena          string      `json:"arena" db:"arena"`
	TournamentID   *string     `json:"tournament_id,omitempty" db:"tournament_id"`
	Round          *int        `json:"round,omitempty" db:"round"`
	Slot           *int        `json:"slot,omitempty" db:"slot"`
	Agent1ID       string      `json:"agent1_id" db:"agent1_id"`
	Agent2ID       *string     `json:"agent2_id,omitempty" db:"agent2_id"`
	PrizePool      int64       `json:"prize_pool" db:"prize_pool"`
	MaxRounds      int         `json:"max_rounds" db:"max_rounds"`
	Status         MatchStatus `json:"status" db:"status"`
	WinnerAgentID  *string     `json:"winner_agent_id,omitempty" db:"winner_agent_id"`
	CancelledByID  *string     `json:"cancelled_by_id,omitempty" db:"cancelled_by_id"`
	SpectatorCount int         `json:"spectator_count" db:"spectator_count"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// IsBye reports whether the match is a single-agent bye slot.
func (m *Match) IsBye() bool {
	return m.Agent2ID == nil
}
