// Package core implements the Tendermint-style BFT replica: message types,
// the height-bounded message log, quorum accounting, timeouts, and the
// state machine and driver loop that ties them together.
package core

import (
	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

// Step is the replica's position within a round.
type Step int

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// Proposal is broadcast by the round's proposer. ValidRound is non-nil
// when the proposer is re-proposing a value it saw achieve a prevote
// quorum in an earlier round.
type Proposal[B hash.Hashable[B]] struct {
	Height     uint64
	Round      uint64
	Value      B
	ValidRound *uint64
}

func (p Proposal[B]) Hash() hash.Hash[Proposal[B]] {
	var vr uint64
	hasVR := byte(0)
	if p.ValidRound != nil {
		vr = *p.ValidRound
		hasVR = 1
	}
	return hash.Composite[Proposal[B]](
		uint64Bytes(p.Height),
		uint64Bytes(p.Round),
		hash.DigestOf(p.Value.Hash()),
		uint64Bytes(vr),
		[]byte{hasVR},
	)
}

// Vote is the shared shape of Prevote and Precommit: a vote for a value
// (Id != nil) or for nil (Id == nil).
type Vote[B hash.Hashable[B]] struct {
	Height uint64
	Round  uint64
	Id     *hash.Hash[B]
}

func NewVote[B hash.Hashable[B]](height, round uint64, id *hash.Hash[B]) Vote[B] {
	return Vote[B]{Height: height, Round: round, Id: id}
}

func (v Vote[B]) Hash() hash.Hash[Vote[B]] {
	var idBytes [32]byte
	hasId := byte(0)
	if v.Id != nil {
		idBytes = v.Id.Digest()
		hasId = 1
	}
	return hash.Composite[Vote[B]](
		uint64Bytes(v.Height),
		uint64Bytes(v.Round),
		idBytes[:],
		[]byte{hasId},
	)
}

// Prevote and Precommit share Vote's shape per spec: {height, round, id}
// with id == nil denoting a vote for nil. They are kept distinct only by
// which slot of a Broadcast or MessageLog they occupy.

// Record remembers a value alongside the round at which it was locked or
// became valid.
type Record[B any] struct {
	Value B
	Round uint64
}

// Broadcast is the tagged union of everything that travels over the
// transport: a signed proposal, prevote or precommit.
type Broadcast[B hash.Hashable[B]] struct {
	Proposal  *contract.Contract[Proposal[B]]
	Prevote   *contract.Contract[Vote[B]]
	Precommit *contract.Contract[Vote[B]]
}

func BroadcastProposal[B hash.Hashable[B]](c contract.Contract[Proposal[B]]) Broadcast[B] {
	return Broadcast[B]{Proposal: &c}
}

func BroadcastPrevote[B hash.Hashable[B]](c contract.Contract[Vote[B]]) Broadcast[B] {
	return Broadcast[B]{Prevote: &c}
}

func BroadcastPrecommit[B hash.Hashable[B]](c contract.Contract[Vote[B]]) Broadcast[B] {
	return Broadcast[B]{Precommit: &c}
}

// Signer returns the UserId of whichever contract this broadcast wraps.
func (b Broadcast[B]) Signer() crypto.UserId {
	switch {
	case b.Proposal != nil:
		return b.Proposal.Signee.Hash()
	case b.Prevote != nil:
		return b.Prevote.Signee.Hash()
	default:
		return b.Precommit.Signee.Hash()
	}
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
