package core

import (
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

// App is the collaborator every Tendermint replica is parameterised by:
// it supplies validator-set membership, block creation/validation, and
// signing, while the engine supplies ordering and safety.
type App[B hash.Hashable[B]] interface {
	// Id is this replica's own UserId.
	Id() crypto.UserId

	// Validators returns the current validator set and each member's
	// voting weight.
	Validators() map[crypto.UserId]uint64

	// TotalVotes is the sum of every validator's weight; W in the spec's
	// quorum arithmetic.
	TotalVotes() uint64

	// Proposer returns the UserId of the validator that must propose at
	// (height, round).
	Proposer(height, round uint64) crypto.UserId

	// CreateBlock produces a new value to propose when this replica is
	// the proposer and has no valid value to re-propose.
	CreateBlock() B

	// ValidateBlock reports whether a proposed value is acceptable.
	ValidateBlock(v B) bool

	// Commit is called exactly once per height, with the value that
	// reached a precommit quorum.
	Commit(height uint64, v B)

	// PrivateKey returns this replica's signing key. The engine uses it
	// to sign proposals, prevotes and precommits via contract.Sign,
	// rather than routing every content type through a single fixed-type
	// Sign method.
	PrivateKey() crypto.PrivateKey
}
