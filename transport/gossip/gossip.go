// Package gossip is a real network transport backed by libp2p's
// GossipSub, for running a committee across separate processes rather
// than over the in-memory transport.Bus used by tests and the demo
// harness. Adapted from echenim-Bedrock's GossipManager: topic
// join/subscribe/publish, with flood publish enabled so a consensus
// message reaches the whole mesh within one round trip rather than
// waiting on gossip's usual lazy-push schedule.
package gossip

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/mileswatson/blockkey/internal/xlog"
)

// TopicConsensus is the single topic every replica in a committee
// publishes Broadcast messages to; unlike Bedrock's split
// consensus/mempool/sync topics, a consensus replica has only one kind
// of traffic to gossip.
const TopicConsensus = "/blockkey/consensus/v1"

// MaxMessageSize bounds an individual gossip payload; larger messages
// are rejected by the topic validator rather than deserialized.
const MaxMessageSize = 1 << 20 // 1 MiB

// Manager owns a single GossipSub topic used to carry encoded
// Broadcast messages between replicas.
type Manager struct {
	ps   *pubsub.PubSub
	host host.Host
	log  xlog.Logger

	mu    sync.Mutex
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// NewManager starts GossipSub over h with flood publishing enabled and
// message signing left to the contract layer (consensus messages are
// already signed contracts; an additional pubsub-level signature would
// be redundant).
func NewManager(ctx context.Context, h host.Host, log xlog.Logger) (*Manager, error) {
	if log == nil {
		log = xlog.Root()
	}
	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithFloodPublish(true),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
	)
	if err != nil {
		return nil, fmt.Errorf("gossip: create gossipsub: %w", err)
	}
	return &Manager{ps: ps, host: h, log: log}, nil
}

// Join subscribes to TopicConsensus and registers a size-based
// validator; Recv must be called to pump accepted messages.
func (m *Manager) Join() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topic != nil {
		return nil
	}
	topic, err := m.ps.Join(TopicConsensus)
	if err != nil {
		return fmt.Errorf("gossip: join: %w", err)
	}
	if err := m.ps.RegisterTopicValidator(TopicConsensus, func(_ context.Context, _ peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
		if len(msg.Data) == 0 || len(msg.Data) > MaxMessageSize {
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	}); err != nil {
		return fmt.Errorf("gossip: register validator: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("gossip: subscribe: %w", err)
	}
	m.topic = topic
	m.sub = sub
	return nil
}

// Publish broadcasts one already-encoded message to the mesh.
func (m *Manager) Publish(ctx context.Context, data []byte) error {
	m.mu.Lock()
	topic := m.topic
	m.mu.Unlock()
	if topic == nil {
		return fmt.Errorf("gossip: not joined")
	}
	return topic.Publish(ctx, data)
}

// Recv pumps accepted messages into the returned channel until ctx is
// cancelled, skipping messages this host published itself.
func (m *Manager) Recv(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		self := m.host.ID()
		for {
			msg, err := m.sub.Next(ctx)
			if err != nil {
				m.log.Debug("gossip subscription closed", "err", err)
				return
			}
			if msg.ReceivedFrom == self {
				continue
			}
			select {
			case out <- msg.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close tears down the subscription and topic handle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	if m.topic != nil {
		m.topic.Close()
		m.topic = nil
	}
}
