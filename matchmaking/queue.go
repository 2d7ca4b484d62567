// Package matchmaking holds the in-process waiting queue for agents requesting
// a match. State is ephemeral: the store is constructed once at process start
// and owned exclusively by this process.
package matchmaking

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agonlabs/arena-system/models"
)

// QueueStore keeps, per arena, the ordered collection of waiting agents. Each
// arena bucket carries its own mutex so unrelated arenas never serialize
// behind one lock; the cross-arena agent index has a separate lock and is
// always acquired before any bucket lock.
type QueueStore struct {
	agentMu sync.Mutex
	byAgent map[string]*models.QueueEntry

	arenaMu sync.RWMutex
	arenas  map[string]*arenaQueue
}

type arenaQueue struct {
	mu      sync.Mutex
	entries []*models.QueueEntry
}

func NewQueueStore() *QueueStore {
	return &QueueStore{
		byAgent: make(map[string]*models.QueueEntry),
		arenas:  make(map[string]*arenaQueue),
	}
}

func (s *QueueStore) arena(name string) *arenaQueue {
	s.arenaMu.RLock()
	q, ok := s.arenas[name]
	s.arenaMu.RUnlock()
	if ok {
		return q
	}
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()
	if q, ok = s.arenas[name]; ok {
		return q
	}
	q = &arenaQueue{}
	s.arenas[name] = q
	return q
}

// Enqueue adds the agent to the arena's waiting line and returns the entry and
// its 1-based position. If the agent already holds an entry in any arena, that
// entry is returned unchanged with alreadyQueued=true.
func (s *QueueStore) Enqueue(agentID, arena string, prizePool int64, maxRounds, rating int) (entry *models.QueueEntry, position int, alreadyQueued bool) {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()

	if existing, ok := s.byAgent[agentID]; ok {
		return existing, s.position(existing), true
	}

	entry = &models.QueueEntry{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Arena:     arena,
		PrizePool: prizePool,
		MaxRounds: maxRounds,
		Rating:    rating,
		JoinedAt:  time.Now().UTC(),
	}

	q := s.arena(arena)
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	position = len(q.entries)
	q.mu.Unlock()

	s.byAgent[agentID] = entry
	return entry, position, false
}

// position returns the 1-based index of the entry in its arena, or 0 if it is
// no longer queued.
func (s *QueueStore) position(entry *models.QueueEntry) int {
	q := s.arena(entry.Arena)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == entry.ID {
			return i + 1
		}
	}
	return 0
}

// EntryByAgent returns the agent's active entry, or nil if not queued.
func (s *QueueStore) EntryByAgent(agentID string) *models.QueueEntry {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	return s.byAgent[agentID]
}

// Position reports the 1-based queue position of an agent, or 0 if not queued.
func (s *QueueStore) Position(agentID string) int {
	s.agentMu.Lock()
	entry, ok := s.byAgent[agentID]
	s.agentMu.Unlock()
	if !ok {
		return 0
	}
	return s.position(entry)
}

// FindCandidates returns all waiting entries in the arena with the same prize
// pool, excluding the requesting agent, ordered by ascending absolute rating
// difference from rating; ties break by ascending join time so no entry starves
// behind equally-ranked peers. The store is not mutated; callers decide whether
// to commit a pairing.
func (s *QueueStore) FindCandidates(arena string, prizePool int64, agentID string, rating int) []*models.QueueEntry {
	q := s.arena(arena)
	q.mu.Lock()
	candidates := make([]*models.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.AgentID == agentID || e.PrizePool != prizePool {
			continue
		}
		candidates = append(candidates, e)
	}
	q.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := absDiff(candidates[i].Rating, rating), absDiff(candidates[j].Rating, rating)
		if di != dj {
			return di < dj
		}
		return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
	})
	return candidates
}

// RemoveByID removes and returns the entry with the given id, searching all
// arenas. A missing id returns nil, not an error.
func (s *QueueStore) RemoveByID(entryID string) *models.QueueEntry {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	for _, entry := range s.byAgent {
		if entry.ID == entryID {
			s.removeLocked(entry)
			return entry
		}
	}
	return nil
}

// RemoveByAgent removes and returns the agent's entry. When arena is non-empty
// the entry is only removed if it waits in that arena.
func (s *QueueStore) RemoveByAgent(agentID, arena string) *models.QueueEntry {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	entry, ok := s.byAgent[agentID]
	if !ok {
		return nil
	}
	if arena != "" && entry.Arena != arena {
		return nil
	}
	s.removeLocked(entry)
	return entry
}

// removeLocked drops the entry from its arena bucket and the agent index.
// Caller holds agentMu.
func (s *QueueStore) removeLocked(entry *models.QueueEntry) {
	q := s.arena(entry.Arena)
	q.mu.Lock()
	for i, e := range q.entries {
		if e.ID == entry.ID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	delete(s.byAgent, entry.AgentID)
}

// Restore reinserts a previously removed entry unchanged, used to roll back a
// pairing whose persistence failed. A duplicate id is a no-op.
func (s *QueueStore) Restore(entry *models.QueueEntry) {
	if entry == nil {
		return
	}
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	if existing, ok := s.byAgent[entry.AgentID]; ok && existing.ID == entry.ID {
		return
	}
	q := s.arena(entry.Arena)
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	s.byAgent[entry.AgentID] = entry
}

// Stats reports waiting count and oldest join time for one arena, or for all
// arenas when arena is empty. Read-only.
func (s *QueueStore) Stats(arena string) []models.QueueStats {
	s.arenaMu.RLock()
	names := make([]string, 0, len(s.arenas))
	for name := range s.arenas {
		if arena == "" || name == arena {
			names = append(names, name)
		}
	}
	s.arenaMu.RUnlock()
	sort.Strings(names)

	stats := make([]models.QueueStats, 0, len(names))
	for _, name := range names {
		q := s.arena(name)
		q.mu.Lock()
		st := models.QueueStats{Arena: name, WaitingCount: len(q.entries)}
		for _, e := range q.entries {
			if st.OldestJoin == nil || e.JoinedAt.Before(*st.OldestJoin) {
				t := e.JoinedAt
				st.OldestJoin = &t
			}
		}
		q.mu.Unlock()
		stats = append(stats, st)
	}
	return stats
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
