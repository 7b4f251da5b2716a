package memapp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/crypto"
)

func newCommittee(t *testing.T, n int) []Validator {
	t.Helper()
	committee := make([]Validator, n)
	for i := range committee {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		committee[i] = Validator{Key: priv, Weight: uint64(i + 1)}
	}
	return committee
}

func TestProposerRotatesByHeightPlusRound(t *testing.T) {
	committee := newCommittee(t, 3)
	app := New(committee[0].Key, committee, nil)

	ids := make([]crypto.UserId, 3)
	for i, v := range committee {
		ids[i] = v.Key.PublicKey().Hash()
	}

	require.Equal(t, ids[0], app.Proposer(0, 0))
	require.Equal(t, ids[1], app.Proposer(0, 1))
	require.Equal(t, ids[2], app.Proposer(0, 2))
	require.Equal(t, ids[0], app.Proposer(0, 3)) // wraps around
	require.Equal(t, ids[1], app.Proposer(1, 0))
}

func TestCreateBlockIsCachedAndRetrievable(t *testing.T) {
	committee := newCommittee(t, 1)
	app := New(committee[0].Key, committee, nil)

	block := app.CreateBlock()
	got, ok := app.GetBlock(block.Hash())
	require.True(t, ok)
	require.Equal(t, block, got)
}

func TestValidateBlockRejectsEmpty(t *testing.T) {
	committee := newCommittee(t, 1)
	app := New(committee[0].Key, committee, nil)

	require.False(t, app.ValidateBlock(Block{}))
	require.True(t, app.ValidateBlock(Block{1, 2, 3}))

	block := Block{1, 2, 3}
	got, ok := app.GetBlock(block.Hash())
	require.True(t, ok)
	require.Equal(t, block, got)
}

func TestCommitRecordsAndNotifiesWatchers(t *testing.T) {
	committee := newCommittee(t, 1)
	app := New(committee[0].Key, committee, nil)
	commits := app.WatchCommits()

	app.Commit(0, Block{9})
	require.Equal(t, []Block{{9}}, app.Commits())

	select {
	case h := <-commits:
		require.Equal(t, uint64(0), h)
	default:
		t.Fatal("expected a commit notification")
	}
}

func TestSetValidatorsReplacesCommitteeAndNotifies(t *testing.T) {
	committee := newCommittee(t, 2)
	app := New(committee[0].Key, committee, nil)
	changes := app.Watch()

	require.Equal(t, uint64(3), app.TotalVotes())

	bigger := newCommittee(t, 3)
	app.SetValidators(bigger)

	require.Equal(t, uint64(1+2+3), app.TotalVotes())

	select {
	case next := <-changes:
		require.Len(t, next, 3)
	default:
		t.Fatal("expected a validator-set-change notification")
	}
}
