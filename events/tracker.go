package events

import "sync"

// Tracker keeps the per-match set of live spectator connection ids. Cardinality
// is the authoritative current viewer count; empty sets are garbage-collected.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]map[string]struct{})}
}

// Connect adds the connection to the match's spectator set and returns the new
// count. Re-adding an existing id is a no-op on the count.
func (t *Tracker) Connect(matchID, connID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[matchID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[matchID] = set
	}
	set[connID] = struct{}{}
	return len(set)
}

// Disconnect removes the connection and returns the remaining count, deleting
// the match's entry entirely once it reaches zero.
func (t *Tracker) Disconnect(matchID, connID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[matchID]
	if !ok {
		return 0
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(t.conns, matchID)
		return 0
	}
	return len(set)
}

// Count returns the current spectator count for a match.
func (t *Tracker) Count(matchID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[matchID])
}
