package core

import (
	"sync/atomic"
	"time"

	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

// RoundState is the replica's position within the current round.
type RoundState struct {
	Round                    uint64
	Step                     Step
	PrevoteTimeoutScheduled  bool
	PrecommitTimeoutScheduled bool

	validators map[crypto.UserId]uint64
	quorum     Quorum
}

func newRoundState(round uint64, validators map[crypto.UserId]uint64) RoundState {
	var total uint64
	for _, w := range validators {
		total += w
	}
	return RoundState{
		Round:      round,
		Step:       StepPropose,
		validators: validators,
		quorum:     NewQuorum(total),
	}
}

func (r RoundState) weight(id crypto.UserId) uint64 { return r.validators[id] }

// Tendermint is a single BFT replica: the state machine from spec §4.6
// driven by start_round and the rule battery (R22, R28, R34, R36, R44,
// R47, R49) plus the supplemented round-skip rule R55.
type Tendermint[B hash.Hashable[B]] struct {
	app     App[B]
	height  uint64
	current RoundState
	locked  *Record[B]
	valid   *Record[B]
	log     *MessageLog[B]
	timeouts *TimeoutManager
	provider TimeoutProvider

	incoming <-chan Broadcast[B]
	outgoing chan<- Broadcast[B]

	evidence EvidenceSink[B]
	status   atomic.Pointer[Status[B]]
}

// EvidenceSink receives best-effort equivocation evidence as the driver
// appends messages to the log: one call per proposal signed by signer
// for (height, round), identified only by its content hash so the sink has no
// dependency on the engine's own Proposal type. It never gates a rule's
// firing.
type EvidenceSink[B hash.Hashable[B]] interface {
	ObserveProposal(height, round uint64, signer crypto.UserId, valueHash hash.Hash[B])
}

type noopEvidenceSink[B hash.Hashable[B]] struct{}

func (noopEvidenceSink[B]) ObserveProposal(uint64, uint64, crypto.UserId, hash.Hash[B]) {}

// NewTendermint constructs a replica at height 0, round 0. Call Run to
// drive it.
func NewTendermint[B hash.Hashable[B]](
	app App[B],
	incoming <-chan Broadcast[B],
	outgoing chan<- Broadcast[B],
	provider TimeoutProvider,
	evidence EvidenceSink[B],
) *Tendermint[B] {
	if provider == nil {
		provider = LinearBackoff(1000*time.Millisecond, 30*time.Second)
	}
	if evidence == nil {
		evidence = noopEvidenceSink[B]{}
	}
	t := &Tendermint[B]{
		app:      app,
		height:   0,
		log:      NewMessageLog[B](DefaultWindow),
		timeouts: NewTimeoutManager(),
		provider: provider,
		incoming: incoming,
		outgoing: outgoing,
		evidence: evidence,
	}
	t.current = newRoundState(0, app.Validators())
	t.publishStatus()
	return t
}

// startRound implements spec §4.6's Round start.
func (t *Tendermint[B]) startRound(round uint64) error {
	t.current = newRoundState(round, t.app.Validators())

	if t.app.Proposer(t.height, round) == t.app.Id() {
		var value B
		var validRound *uint64
		if t.valid != nil {
			value = t.valid.Value
			vr := t.valid.Round
			validRound = &vr
		} else {
			value = t.app.CreateBlock()
		}
		proposal := Proposal[B]{Height: t.height, Round: round, Value: value, ValidRound: validRound}
		signed := contract.Sign(t.app.PrivateKey(), proposal)
		return t.broadcast(BroadcastProposal(signed))
	}

	t.timeouts.Add(TimeoutTag{Kind: TimeoutPropose, Height: t.height, Round: round}, t.provider(TimeoutPropose, round))
	return nil
}

// broadcast sends b on the outgoing channel. A send on a channel closed by
// the transport panics; that panic is recovered here and turned into
// ErrOutgoingClosed, mirroring the original's Result-returning send.
func (t *Tendermint[B]) broadcast(b Broadcast[B]) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrOutgoingClosed
		}
	}()
	t.outgoing <- b
	return nil
}

// runRules evaluates the rule battery to a fixpoint, matching spec's
// "rerun the whole battery if anything changed" fixpoint semantics.
func (t *Tendermint[B]) runRules() error {
	for {
		changed := false
		for _, rule := range []func() (bool, error){
			t.line22, t.line28, t.line34, t.line36, t.line44, t.line47, t.line49, t.line55,
		} {
			c, err := rule()
			if err != nil {
				return err
			}
			changed = changed || c
		}
		if !changed {
			t.publishStatus()
			return nil
		}
	}
}

// polkaWeight sums the deduplicated weight of prevotes at (height, round)
// matching id (nil id means a vote for nil).
func (t *Tendermint[B]) polkaWeight(prevotes []contract.Contract[Vote[B]], height, round uint64, id *hash.Hash[B]) uint64 {
	var signers []crypto.UserId
	for _, c := range prevotes {
		v := c.Content
		if v.Height != height || v.Round != round {
			continue
		}
		if !voteIdEqual(v.Id, id) {
			continue
		}
		signers = append(signers, c.Signee.Hash())
	}
	return weightedSum(t.current.validators, signers)
}

func voteIdEqual[B hash.Hashable[B]](a, b *hash.Hash[B]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func anyVoteWeight[B hash.Hashable[B]](validators map[crypto.UserId]uint64, votes []contract.Contract[Vote[B]], height, round uint64) uint64 {
	var signers []crypto.UserId
	for _, c := range votes {
		if c.Content.Height == height && c.Content.Round == round {
			signers = append(signers, c.Signee.Hash())
		}
	}
	return weightedSum(validators, signers)
}

// R22: propose -> prevote on a fresh proposal.
func (t *Tendermint[B]) line22() (bool, error) {
	if t.current.Step != StepPropose {
		return false, nil
	}

	proposals, _, _ := t.log.GetCurrent()
	proposer := t.app.Proposer(t.height, t.current.Round)

	for _, c := range proposals {
		p := c.Content
		if c.Signee.Hash() != proposer {
			continue
		}
		if p.Height != t.height || p.Round != t.current.Round || p.ValidRound != nil {
			continue
		}

		var id *hash.Hash[B]
		if t.app.ValidateBlock(p.Value) && (t.locked == nil || equalValue(t.locked.Value, p.Value)) {
			h := p.Value.Hash()
			id = &h
		}

		vote := NewVote(t.height, t.current.Round, id)
		signed := contract.Sign(t.app.PrivateKey(), vote)
		if err := t.broadcast(BroadcastPrevote(signed)); err != nil {
			return false, err
		}
		t.current.Step = StepPrevote
		return true, nil
	}
	return false, nil
}

// R28: propose -> prevote on a re-proposal backed by polka history.
func (t *Tendermint[B]) line28() (bool, error) {
	if t.current.Step != StepPropose {
		return false, nil
	}

	proposer := t.app.Proposer(t.height, t.current.Round)
	proposals, prevotes, _ := t.log.GetCurrent()

	for _, c := range proposals {
		p := c.Content
		if c.Signee.Hash() != proposer {
			continue
		}
		if p.Height != t.height || p.Round != t.current.Round || p.ValidRound == nil {
			continue
		}
		vr := *p.ValidRound
		if vr >= t.current.Round {
			continue
		}

		id := p.Value.Hash()
		weight := t.polkaWeight(prevotes, t.height, vr, &id)
		if weight <= t.current.quorum.TwoF {
			continue
		}

		var voteId *hash.Hash[B]
		if t.app.ValidateBlock(p.Value) && (t.locked == nil || t.locked.Round <= vr || equalValue(t.locked.Value, p.Value)) {
			voteId = &id
		}

		vote := NewVote(t.height, t.current.Round, voteId)
		signed := contract.Sign(t.app.PrivateKey(), vote)
		if err := t.broadcast(BroadcastPrevote(signed)); err != nil {
			return false, err
		}
		t.current.Step = StepPrevote
		return true, nil
	}
	return false, nil
}

// R34: schedule a prevote timeout once any-vote polka is observed.
func (t *Tendermint[B]) line34() (bool, error) {
	if t.current.Step != StepPrevote || t.current.PrevoteTimeoutScheduled {
		return false, nil
	}

	_, prevotes, _ := t.log.GetCurrent()
	weight := anyVoteWeight(t.current.validators, prevotes, t.height, t.current.Round)
	if weight <= t.current.quorum.TwoF {
		return false, nil
	}

	t.timeouts.Add(TimeoutTag{Kind: TimeoutPrevote, Height: t.height, Round: t.current.Round}, t.provider(TimeoutPrevote, t.current.Round))
	t.current.PrevoteTimeoutScheduled = true
	return false, nil
}

// R36: commit-lock and precommit.
func (t *Tendermint[B]) line36() (bool, error) {
	if t.current.Step == StepPropose {
		return false, nil
	}

	proposals, prevotes, _ := t.log.GetCurrent()
	proposer := t.app.Proposer(t.height, t.current.Round)

	for _, c := range proposals {
		p := c.Content
		if c.Signee.Hash() != proposer {
			continue
		}
		if p.Height != t.height || p.Round != t.current.Round {
			continue
		}
		if !t.app.ValidateBlock(p.Value) {
			continue
		}
		id := p.Value.Hash()
		weight := t.polkaWeight(prevotes, t.height, t.current.Round, &id)
		if weight <= t.current.quorum.TwoF {
			continue
		}

		changed := false
		if t.current.Step == StepPrevote {
			t.locked = &Record[B]{Value: p.Value, Round: t.current.Round}
			vote := NewVote(t.height, t.current.Round, &id)
			signed := contract.Sign(t.app.PrivateKey(), vote)
			if err := t.broadcast(BroadcastPrecommit(signed)); err != nil {
				return false, err
			}
			t.current.Step = StepPrecommit
			changed = true
		}
		t.valid = &Record[B]{Value: p.Value, Round: t.current.Round}
		return changed, nil
	}
	return false, nil
}

// R44: nil-polka forces a precommit for nil.
func (t *Tendermint[B]) line44() (bool, error) {
	if t.current.Step != StepPrevote {
		return false, nil
	}

	_, prevotes, _ := t.log.GetCurrent()
	weight := t.polkaWeight(prevotes, t.height, t.current.Round, nil)
	if weight <= t.current.quorum.TwoF {
		return false, nil
	}

	vote := NewVote[B](t.height, t.current.Round, nil)
	signed := contract.Sign(t.app.PrivateKey(), vote)
	if err := t.broadcast(BroadcastPrecommit(signed)); err != nil {
		return false, err
	}
	t.current.Step = StepPrecommit
	return true, nil
}

// R47: schedule a precommit timeout once any-vote precommit quorum forms.
func (t *Tendermint[B]) line47() (bool, error) {
	if t.current.PrecommitTimeoutScheduled {
		return false, nil
	}

	_, _, precommits := t.log.GetCurrent()
	weight := anyVoteWeight(t.current.validators, precommits, t.height, t.current.Round)
	if weight <= t.current.quorum.TwoF {
		return false, nil
	}

	t.timeouts.Add(TimeoutTag{Kind: TimeoutPrecommit, Height: t.height, Round: t.current.Round}, t.provider(TimeoutPrecommit, t.current.Round))
	t.current.PrecommitTimeoutScheduled = true
	return false, nil
}

// R49: commit once a proposal's value reaches a precommit quorum at any
// round of the current height.
func (t *Tendermint[B]) line49() (bool, error) {
	proposals, _, precommits := t.log.GetCurrent()

	type candidate struct {
		round uint64
		value B
	}
	var best *candidate

	for _, c := range proposals {
		p := c.Content
		if p.Height != t.height {
			continue
		}
		if c.Signee.Hash() != t.app.Proposer(t.height, p.Round) {
			continue
		}
		if !t.app.ValidateBlock(p.Value) {
			continue
		}
		id := p.Value.Hash()
		weight := t.polkaWeight(precommits, t.height, p.Round, &id)
		if weight <= t.current.quorum.TwoF {
			continue
		}
		// Lowest qualifying round first, resolving the spec's tie-break
		// open question the same way original_source favours the
		// earliest-observed evidence.
		if best == nil || p.Round < best.round {
			best = &candidate{round: p.Round, value: p.Value}
		}
	}

	if best == nil {
		return false, nil
	}

	t.app.Commit(t.height, best.value)
	t.height++
	t.locked = nil
	t.valid = nil
	t.log.IncrementHeight()
	if err := t.startRound(0); err != nil {
		return false, err
	}
	return true, nil
}

// R55 (supplemented): skip ahead to a future round once f+1 deduplicated
// weight of messages at that round is observed, so a replica stuck behind
// the rest of the committee does not wait out a full timeout to catch up.
func (t *Tendermint[B]) line55() (bool, error) {
	proposals, prevotes, precommits := t.log.GetCurrent()

	byRound := make(map[uint64][]crypto.UserId)
	for _, c := range proposals {
		if c.Content.Round > t.current.Round {
			byRound[c.Content.Round] = append(byRound[c.Content.Round], c.Signee.Hash())
		}
	}
	for _, c := range prevotes {
		if c.Content.Round > t.current.Round {
			byRound[c.Content.Round] = append(byRound[c.Content.Round], c.Signee.Hash())
		}
	}
	for _, c := range precommits {
		if c.Content.Round > t.current.Round {
			byRound[c.Content.Round] = append(byRound[c.Content.Round], c.Signee.Hash())
		}
	}

	var target uint64
	found := false
	for round, signers := range byRound {
		if weightedSum(t.current.validators, signers) <= t.current.quorum.F {
			continue
		}
		if !found || round < target {
			target = round
			found = true
		}
	}

	if !found {
		return false, nil
	}
	if err := t.startRound(target); err != nil {
		return false, err
	}
	return true, nil
}

func equalValue[B hash.Hashable[B]](a, b B) bool {
	return a.Hash() == b.Hash()
}
