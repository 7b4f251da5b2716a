// Package accountability collects best-effort double-proposal evidence
// observed as a replica's driver appends proposals to its log. Spec §7 leaves
// equivocation handling to the application; this pool is a read-only
// convenience an App MAY consult and never feeds back into quorum math.
package accountability

import (
	"sync"

	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

// DoubleProposal records two distinct value hashes signed by the same
// validator for the same (height, round).
type DoubleProposal[B any] struct {
	Height uint64
	Round  uint64
	Signer crypto.UserId
	First  hash.Hash[B]
	Second hash.Hash[B]
}

// Pool accumulates DoubleProposal evidence per (height, round, signer),
// keeping at most one entry per offending signer the way the teacher's
// accountability subsystem keeps one proof per slashable condition.
type Pool[B any] struct {
	mu       sync.Mutex
	seen     map[key]hash.Hash[B]
	evidence map[key]DoubleProposal[B]
}

type key struct {
	height uint64
	round  uint64
	signer crypto.UserId
}

func NewPool[B any]() *Pool[B] {
	return &Pool[B]{
		seen:     make(map[key]hash.Hash[B]),
		evidence: make(map[key]DoubleProposal[B]),
	}
}

// ObserveProposal implements core.EvidenceSink: it notes the value hash a
// signer proposed for (height, round), and records evidence the first
// time that signer is seen proposing a second, different value for the
// same (height, round).
func (p *Pool[B]) ObserveProposal(height, round uint64, signer crypto.UserId, valueHash hash.Hash[B]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{height: height, round: round, signer: signer}
	first, ok := p.seen[k]
	if !ok {
		p.seen[k] = valueHash
		return
	}
	if first == valueHash {
		return
	}
	if _, exists := p.evidence[k]; exists {
		return
	}
	p.evidence[k] = DoubleProposal[B]{
		Height: height,
		Round:  round,
		Signer: signer,
		First:  first,
		Second: valueHash,
	}
}

// Pending returns every double-proposal observed so far, in no particular
// order.
func (p *Pool[B]) Pending() []DoubleProposal[B] {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]DoubleProposal[B], 0, len(p.evidence))
	for _, ev := range p.evidence {
		out = append(out, ev)
	}
	return out
}
