// Package transport carries Broadcast messages between replicas.
// core.Tendermint only needs its incoming/outgoing channels wired to
// some transport; this package supplies an in-memory bus (default, used
// by tests and the demo harness), and transport/gossip supplies a
// libp2p-backed one. The package defines no common interface for them.
package transport

import (
	"sync"

	"github.com/google/uuid"
)

// PeerId identifies one endpoint of a transport for logging and dedup
// bookkeeping; it is unrelated to crypto.UserId, which identifies a
// signer rather than a connection.
type PeerId uuid.UUID

func NewPeerId() PeerId { return PeerId(uuid.New()) }

func (p PeerId) String() string { return uuid.UUID(p).String() }

// Bus is an in-memory, fully-connected broadcast medium: every message
// Send by one peer is delivered to every joined peer's channel, the
// sender's own included. It
// exists so core/e2e tests and cmd/blockkeynode's single-process demo
// mode don't need a real network.
type Bus[T any] struct {
	mu      sync.Mutex
	peers   map[PeerId]chan T
	closed  bool
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{peers: make(map[PeerId]chan T)}
}

// Join registers a new peer and returns its id plus a channel that
// receives every message Sent by any peer, including itself. The channel is
// buffered so a slow peer cannot stall the sender; overflow is dropped,
// matching the teacher's best-effort gossip fan-out.
func (b *Bus[T]) Join(bufferSize int) (PeerId, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := NewPeerId()
	ch := make(chan T, bufferSize)
	b.peers[id] = ch
	return id, ch
}

// Leave removes a peer and closes its channel.
func (b *Bus[T]) Leave(id PeerId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.peers[id]; ok {
		delete(b.peers, id)
		close(ch)
	}
}

// Send fans a message out to every joined peer, including from itself:
// spec §5 requires each correct replica to see its own broadcasts, and
// core.Tendermint only ever appends to its log from messages arriving
// on its incoming channel, never from its own outgoing writes. A full
// peer channel is skipped rather than blocking the sender.
func (b *Bus[T]) Send(from PeerId, msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.peers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close shuts the bus down and closes every joined peer's channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.peers {
		delete(b.peers, id)
		close(ch)
	}
}
