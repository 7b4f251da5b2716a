package core

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/mileswatson/blockkey/crypto"
)

// Quorum derives the thresholds used by every line rule from the total
// voting weight W reported by the application: f = floor(W/3),
// two_f = 2*f.
type Quorum struct {
	F     uint64
	TwoF  uint64
	Total uint64
}

func NewQuorum(totalWeight uint64) Quorum {
	f := totalWeight / 3
	return Quorum{F: f, TwoF: 2 * f, Total: totalWeight}
}

// weightedSum sums voting weight for signers matching predicate, counting
// each signer at most once even if it appears multiple times in signers
// (e.g. a byzantine double-vote at the same height/round). This dedup is
// load-bearing: without it a single malicious signer could be counted
// twice towards a two-thirds quorum.
func weightedSum(validators map[crypto.UserId]uint64, signers []crypto.UserId) uint64 {
	seen := mapset.NewThreadUnsafeSet()
	var total uint64
	for _, id := range signers {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		total += validators[id]
	}
	return total
}
