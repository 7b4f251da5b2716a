package memapp

import (
	"sync"

	"github.com/mileswatson/blockkey/crypto"
)

// ValidatorSetWatcher fans out validator-set changes and commit events to
// any number of subscribers, adapted from the teacher's CommitteeWatcher
// chain-head subscription: where that watcher subscribed to a single
// upstream chain-head event channel and forwarded epoch changes, this one
// is itself the publisher, since memapp.App has no underlying chain to
// subscribe to.
type ValidatorSetWatcher struct {
	mu          sync.Mutex
	subscribers []chan map[crypto.UserId]uint64
	commits     []chan uint64
}

func newValidatorSetWatcher() *ValidatorSetWatcher {
	return &ValidatorSetWatcher{}
}

func (w *ValidatorSetWatcher) subscribe() <-chan map[crypto.UserId]uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan map[crypto.UserId]uint64, 4)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

func (w *ValidatorSetWatcher) subscribeCommits() <-chan uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan uint64, 16)
	w.commits = append(w.commits, ch)
	return ch
}

func (w *ValidatorSetWatcher) notifyChange(next map[crypto.UserId]uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subscribers {
		select {
		case ch <- next:
		default:
		}
	}
}

func (w *ValidatorSetWatcher) notifyCommit(height uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.commits {
		select {
		case ch <- height:
		default:
		}
	}
}

// WatchCommits returns a channel receiving the height of every commit.
func (a *App) WatchCommits() <-chan uint64 {
	return a.watchers.subscribeCommits()
}
