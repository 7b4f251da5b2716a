package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/crypto"
)

// fixedApp is a minimal App stub for white-box rule testing: the
// committee and proposer assignment are fixed by the test, decoupled from
// any real networking or timing.
type fixedApp struct {
	id         crypto.UserId
	validators map[crypto.UserId]uint64
	proposer   crypto.UserId
	priv       crypto.PrivateKey
	committed  []testBlock
}

func (a *fixedApp) Id() crypto.UserId                           { return a.id }
func (a *fixedApp) Validators() map[crypto.UserId]uint64        { return a.validators }
func (a *fixedApp) Proposer(height, round uint64) crypto.UserId { return a.proposer }
func (a *fixedApp) CreateBlock() testBlock                      { return "new" }
func (a *fixedApp) ValidateBlock(v testBlock) bool              { return v != "invalid" }
func (a *fixedApp) Commit(height uint64, v testBlock)           { a.committed = append(a.committed, v) }
func (a *fixedApp) PrivateKey() crypto.PrivateKey               { return a.priv }

func (a *fixedApp) TotalVotes() uint64 {
	var total uint64
	for _, w := range a.validators {
		total += w
	}
	return total
}

func fourValidatorSetup(t *testing.T) (*fixedApp, []crypto.PrivateKey) {
	t.Helper()
	keys := make([]crypto.PrivateKey, 4)
	validators := make(map[crypto.UserId]uint64, 4)
	for i := range keys {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = priv
		validators[priv.PublicKey().Hash()] = 1
	}
	app := &fixedApp{
		id:         keys[0].PublicKey().Hash(),
		validators: validators,
		proposer:   keys[0].PublicKey().Hash(),
		priv:       keys[0],
	}
	return app, keys
}

// testHarness exposes a Tendermint replica alongside the bidirectional
// form of its outgoing channel, since the replica itself only ever holds
// the send-only half.
type testHarness struct {
	*Tendermint[testBlock]
	outgoing chan Broadcast[testBlock]
}

func newTestReplica(t *testing.T, app *fixedApp) *testHarness {
	t.Helper()
	incoming := make(chan Broadcast[testBlock], 64)
	outgoing := make(chan Broadcast[testBlock], 64)
	r := NewTendermint[testBlock](app, incoming, outgoing, nil, nil)
	return &testHarness{Tendermint: r, outgoing: outgoing}
}

func (h *testHarness) drainOutgoing() *Broadcast[testBlock] {
	select {
	case b := <-h.outgoing:
		return &b
	default:
		return nil
	}
}

// R22: a fresh proposal with no existing lock causes a prevote for it.
func TestLine22PrevotesFreshProposal(t *testing.T) {
	app, _ := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing() // NewTendermint does not call startRound, so nothing is queued yet

	proposal := Proposal[testBlock]{Height: 0, Round: 0, Value: "B"}
	signed := contract.Sign(app.priv, proposal)
	h.log.Add(BroadcastProposal(signed))

	changed, err := h.line22()
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StepPrevote, h.current.Step)

	b := h.drainOutgoing()
	require.NotNil(t, b)
	require.NotNil(t, b.Prevote)
	require.NotNil(t, b.Prevote.Content.Id)
}

// R22: an invalid value is prevoted nil rather than for the value.
func TestLine22PrevotesNilForInvalidValue(t *testing.T) {
	app, _ := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing()

	proposal := Proposal[testBlock]{Height: 0, Round: 0, Value: "invalid"}
	signed := contract.Sign(app.priv, proposal)
	h.log.Add(BroadcastProposal(signed))

	changed, err := h.line22()
	require.NoError(t, err)
	require.True(t, changed)

	b := h.drainOutgoing()
	require.NotNil(t, b.Prevote)
	require.Nil(t, b.Prevote.Content.Id)
}

// R36 + R49: once a polka and then a precommit quorum form for a value,
// the replica locks, precommits, and ultimately commits exactly that
// value.
func TestLine36LocksAndLine49Commits(t *testing.T) {
	app, keys := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing()

	proposal := Proposal[testBlock]{Height: 0, Round: 0, Value: "B"}
	signedProposal := contract.Sign(app.priv, proposal)
	h.log.Add(BroadcastProposal(signedProposal))
	require.NoError(t, h.runRules())
	require.Equal(t, StepPrevote, h.current.Step)

	// Three of four validators (a polka) prevote for B.
	valueHash := testBlock("B").Hash()
	for i := 0; i < 3; i++ {
		vote := NewVote(uint64(0), uint64(0), &valueHash)
		h.log.Add(BroadcastPrevote(contract.Sign(keys[i], vote)))
	}
	require.NoError(t, h.runRules())

	require.NotNil(t, h.locked)
	require.Equal(t, testBlock("B"), h.locked.Value)
	require.Equal(t, StepPrecommit, h.current.Step)

	// Three of four validators precommit for B: quorum -> commit.
	for i := 0; i < 3; i++ {
		vote := NewVote(uint64(0), uint64(0), &valueHash)
		h.log.Add(BroadcastPrecommit(contract.Sign(keys[i], vote)))
	}
	require.NoError(t, h.runRules())

	require.Equal(t, []testBlock{"B"}, app.committed)
	require.Equal(t, uint64(1), h.height)
	require.Nil(t, h.locked)
	require.Nil(t, h.valid)
}

// R44: a nil polka forces a precommit for nil without ever locking.
func TestLine44PrecommitsNilOnNilPolka(t *testing.T) {
	app, keys := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing()

	proposal := Proposal[testBlock]{Height: 0, Round: 0, Value: "B"}
	h.log.Add(BroadcastProposal(contract.Sign(app.priv, proposal)))
	require.NoError(t, h.runRules())

	for i := 0; i < 3; i++ {
		vote := NewVote[testBlock](0, 0, nil)
		h.log.Add(BroadcastPrevote(contract.Sign(keys[i], vote)))
	}
	require.NoError(t, h.runRules())

	require.Nil(t, h.locked)
	require.Equal(t, StepPrecommit, h.current.Step)
}

// Equivocation safety (scenario 4): a proposer that signs two distinct
// values for the same (height, round) cannot thereby cause two different
// values to both reach commit; only the first one a polka forms around
// can ever be locked, and R36 fires at most once per round.
func TestEquivocatingProposerCannotDoubleCommit(t *testing.T) {
	app, keys := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing()

	// The proposer signs two conflicting proposals at (0, 0).
	h.log.Add(BroadcastProposal(contract.Sign(app.priv, Proposal[testBlock]{Height: 0, Round: 0, Value: "B"})))
	h.log.Add(BroadcastProposal(contract.Sign(app.priv, Proposal[testBlock]{Height: 0, Round: 0, Value: "C"})))

	require.NoError(t, h.runRules())
	// R22 takes the first proposal it encounters in log order; exactly
	// one prevote results, never votes for both.
	require.Equal(t, StepPrevote, h.current.Step)

	bHash := testBlock("B").Hash()
	for i := 0; i < 3; i++ {
		h.log.Add(BroadcastPrevote(contract.Sign(keys[i], NewVote(uint64(0), uint64(0), &bHash))))
	}
	require.NoError(t, h.runRules())
	require.Equal(t, testBlock("B"), h.locked.Value, "must lock onto the first proposal a polka formed around")

	// R36 fires at most once per round: re-running the battery with the
	// conflicting C proposal still in the log must not relock or emit a
	// second precommit.
	outgoingBefore := len(h.outgoing)
	require.NoError(t, h.runRules())
	require.Equal(t, testBlock("B"), h.locked.Value)
	require.Equal(t, outgoingBefore, len(h.outgoing), "no duplicate broadcast from re-evaluating an already-satisfied rule")
}

// R55 (supplemented round-skip): f+1 weighted evidence at a future round
// causes the replica to jump ahead rather than wait out a full timeout.
func TestLine55SkipsAheadOnFutureRoundEvidence(t *testing.T) {
	app, keys := fourValidatorSetup(t)
	h := newTestReplica(t, app)
	h.drainOutgoing()

	require.Equal(t, uint64(0), h.current.Round)

	// Two validators' prevotes at round 3 carry weight 2, exceeding f=1.
	for i := 0; i < 2; i++ {
		vote := NewVote[testBlock](0, 3, nil)
		h.log.Add(BroadcastPrevote(contract.Sign(keys[i], vote)))
	}
	require.NoError(t, h.runRules())

	require.Equal(t, uint64(3), h.current.Round)
}
