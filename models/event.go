package models

import "time"

// Well-known match event types carried over the fan-out layer. The orchestrator
// transports and orders events; it does not generate match content, so the set
// is open-ended and these are only the types it emits or special-cases itself.
const (
	EventSpectators   = "spectators"
	EventMatchFound   = "match_found"
	EventRoundAdvance = "round_advance"
)

// MatchEvent is the wire shape delivered to every subscriber of a match stream.
type MatchEvent struct {
	Type      string    `json:"type"`
	MatchID   string    `json:"matchId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
