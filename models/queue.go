package models

import "time"

// QueueEntry identifies a waiting agent within one arena. An agent holds at
// most one active entry across all arenas.
type QueueEntry struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Arena     string    `json:"arena"`
	PrizePool int64     `json:"prize_pool"`
	MaxRounds int       `json:"max_rounds"`
	Rating    int       `json:"rating"`
	JoinedAt  time.Time `json:"joined_at"`
}

// QueueStats summarizes one arena's waiting line, used for ETA estimation.
type QueueStats struct {
	Arena        string     `json:"arena"`
	WaitingCount int        `json:"waiting_count"`
	OldestJoin   *time.Time `json:"oldest_join,omitempty"`
}
