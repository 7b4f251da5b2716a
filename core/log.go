package core

import (
	"sync"

	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/hash"
)

// DefaultWindow is the sliding-window size used when a MessageLog is
// constructed without an explicit window.
const DefaultWindow = 5

// heightLog holds every contract received for one height, in arrival
// order, split by message kind.
type heightLog[B hash.Hashable[B]] struct {
	Proposals  []contract.Contract[Proposal[B]]
	Prevotes   []contract.Contract[Vote[B]]
	Precommits []contract.Contract[Vote[B]]
}

// MessageLog buffers contracts for a sliding window of LIMIT heights.
// Messages for heights outside [height, height+LIMIT) are discarded
// rather than stored, mirroring the teacher's MsgStore but bounded
// instead of unbounded.
type MessageLog[B hash.Hashable[B]] struct {
	mu     sync.Mutex
	window uint64
	base   uint64 // current height; also the low end of the window
	log    map[uint64]*heightLog[B]
}

// NewMessageLog creates a log windowed at window heights, starting at
// height 0. window must be at least 5 per spec.
func NewMessageLog[B hash.Hashable[B]](window uint64) *MessageLog[B] {
	if window < 5 {
		window = 5
	}
	l := &MessageLog[B]{window: window, log: make(map[uint64]*heightLog[B])}
	for h := uint64(0); h < window; h++ {
		l.log[h] = &heightLog[B]{}
	}
	return l
}

// Add inserts b into the slot matching its height and kind, provided that
// height falls within the current window. Out-of-window messages are
// silently discarded, per spec.
func (l *MessageLog[B]) Add(b Broadcast[B]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var height uint64
	switch {
	case b.Proposal != nil:
		height = b.Proposal.Content.Height
	case b.Prevote != nil:
		height = b.Prevote.Content.Height
	case b.Precommit != nil:
		height = b.Precommit.Content.Height
	default:
		return
	}

	hl, ok := l.log[height]
	if !ok {
		return
	}

	switch {
	case b.Proposal != nil:
		hl.Proposals = append(hl.Proposals, *b.Proposal)
	case b.Prevote != nil:
		hl.Prevotes = append(hl.Prevotes, *b.Prevote)
	case b.Precommit != nil:
		hl.Precommits = append(hl.Precommits, *b.Precommit)
	}
}

// GetCurrent returns the proposals/prevotes/precommits buffered for the
// current height.
func (l *MessageLog[B]) GetCurrent() (proposals []contract.Contract[Proposal[B]], prevotes, precommits []contract.Contract[Vote[B]]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getHeightLocked(l.base)
}

// GetHeight returns the proposals/prevotes/precommits buffered for an
// arbitrary in-window height.
func (l *MessageLog[B]) GetHeight(height uint64) (proposals []contract.Contract[Proposal[B]], prevotes, precommits []contract.Contract[Vote[B]]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getHeightLocked(height)
}

func (l *MessageLog[B]) getHeightLocked(height uint64) ([]contract.Contract[Proposal[B]], []contract.Contract[Vote[B]], []contract.Contract[Vote[B]]) {
	hl, ok := l.log[height]
	if !ok {
		return nil, nil, nil
	}
	return hl.Proposals, hl.Prevotes, hl.Precommits
}

// IncrementHeight advances the window: the oldest entry is dropped and a
// fresh empty entry at base+window appears at the top end.
func (l *MessageLog[B]) IncrementHeight() {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.log, l.base)
	l.base++
	l.log[l.base+l.window-1] = &heightLog[B]{}
}

// Height returns the current (lowest, active) height of the window.
func (l *MessageLog[B]) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base
}
