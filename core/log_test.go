package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

type testBlock string

func (b testBlock) Hash() hash.Hash[testBlock] { return hash.Sum[testBlock]([]byte(b)) }

func signProposal(t *testing.T, priv crypto.PrivateKey, height, round uint64, value testBlock) contract.Contract[Proposal[testBlock]] {
	t.Helper()
	return contract.Sign(priv, Proposal[testBlock]{Height: height, Round: round, Value: value})
}

func TestMessageLogAddAndGetCurrent(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	l := NewMessageLog[testBlock](DefaultWindow)
	c := signProposal(t, priv, 0, 0, "b1")
	l.Add(BroadcastProposal(c))

	proposals, prevotes, precommits := l.GetCurrent()
	require.Len(t, proposals, 1)
	require.Empty(t, prevotes)
	require.Empty(t, precommits)
}

func TestMessageLogDiscardsOutOfWindow(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	l := NewMessageLog[testBlock](DefaultWindow)
	// height DefaultWindow is outside [0, DefaultWindow).
	c := signProposal(t, priv, DefaultWindow, 0, "late")
	l.Add(BroadcastProposal(c))

	proposals, _, _ := l.GetHeight(DefaultWindow)
	require.Empty(t, proposals)
}

func TestMessageLogIncrementHeightSlidesWindow(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	l := NewMessageLog[testBlock](DefaultWindow)
	require.Equal(t, uint64(0), l.Height())

	l.IncrementHeight()
	require.Equal(t, uint64(1), l.Height())

	// The new top of the window (height DefaultWindow) should now accept
	// messages that were previously out of window.
	c := signProposal(t, priv, DefaultWindow, 0, "now in window")
	l.Add(BroadcastProposal(c))
	proposals, _, _ := l.GetHeight(DefaultWindow)
	require.Len(t, proposals, 1)

	// Height 0 has been dropped and no longer accepts messages.
	c0 := signProposal(t, priv, 0, 0, "dropped")
	l.Add(BroadcastProposal(c0))
	proposals0, _, _ := l.GetHeight(0)
	require.Empty(t, proposals0)
}
