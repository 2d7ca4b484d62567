// Package brackets contains the pure pairing logic for single-elimination
// tournaments plus the websocket hub that fans bracket updates out to viewers.
package brackets

import (
	"math"
	"sort"

	"github.com/agonlabs/arena-system/models"
)

// Pairing describes one match slot within a round. Agent2 is nil for a bye:
// Agent1 advances without contest.
type Pairing struct {
	Slot   int
	Agent1 string
	Agent2 *string
}

// SeedRound1 pairs tournament entries for the opening round using standard
// bracket seeding: seed 1 meets seed N, seed 2 meets seed N-1 and so on, which
// keeps top seeds apart until the late rounds. An odd entry count leaves the
// single unpaired seed with a bye in the last slot.
func SeedRound1(entries []models.TournamentEntry) []Pairing {
	sorted := make([]models.TournamentEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seed < sorted[j].Seed })

	n := len(sorted)
	pairings := make([]Pairing, 0, (n+1)/2)
	for i := 0; i < n/2; i++ {
		opponent := sorted[n-1-i].AgentID
		pairings = append(pairings, Pairing{
			Slot:   i + 1,
			Agent1: sorted[i].AgentID,
			Agent2: &opponent,
		})
	}
	if n%2 == 1 {
		pairings = append(pairings, Pairing{
			Slot:   n/2 + 1,
			Agent1: sorted[n/2].AgentID,
		})
	}
	return pairings
}

// PairWinners pairs the survivors of a finished round in slot order: slot 1's
// winner meets slot 2's, slot 3's meets slot 4's. An odd survivor count leaves
// the last winner with a bye.
func PairWinners(winners []string) []Pairing {
	pairings := make([]Pairing, 0, (len(winners)+1)/2)
	for i := 0; i+1 < len(winners); i += 2 {
		opponent := winners[i+1]
		pairings = append(pairings, Pairing{
			Slot:   i/2 + 1,
			Agent1: winners[i],
			Agent2: &opponent,
		})
	}
	if len(winners)%2 == 1 {
		pairings = append(pairings, Pairing{
			Slot:   len(winners)/2 + 1,
			Agent1: winners[len(winners)-1],
		})
	}
	return pairings
}

// NumRounds returns the number of rounds needed for n entrants.
func NumRounds(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}
