package gossip

import (
	"context"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mileswatson/blockkey/core"
	"github.com/mileswatson/blockkey/hash"
	"github.com/mileswatson/blockkey/internal/xlog"
)

// Network bootstraps one libp2p host plus GossipSub Manager per replica
// and connects every pair directly, since a committee's membership is
// known up front and there is no need for a DHT or rendezvous point.
// Replica i's traffic goes through Incoming(i) and Send(i, msg), with
// Close tearing the mesh down, so cmd/blockkeynode can adapt it or
// transport.Bus as the transport for core.Tendermint, the difference
// being that Network actually crosses process/OS network
// boundaries (here, distinct libp2p hosts on loopback) rather than
// sharing Go channels in-process.
type Network[B hash.Hashable[B]] struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    xlog.Logger
	codec  Codec[B]

	hosts    []host.Host
	managers []*Manager
	outs     []chan core.Broadcast[B]
}

// NewNetwork starts n libp2p hosts on 127.0.0.1, connects every pair of
// them, and joins TopicConsensus on each. bufferSize sizes every
// replica's decoded-message channel the way transport.Bus.Join does.
func NewNetwork[B hash.Hashable[B]](ctx context.Context, n int, bufferSize int, log xlog.Logger) (*Network[B], error) {
	if log == nil {
		log = xlog.Root()
	}
	runCtx, cancel := context.WithCancel(ctx)
	net := &Network[B]{ctx: runCtx, cancel: cancel, log: log}

	for i := 0; i < n; i++ {
		h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
		if err != nil {
			net.Close()
			return nil, fmt.Errorf("gossip: start host %d: %w", i, err)
		}
		net.hosts = append(net.hosts, h)
	}

	for i, h := range net.hosts {
		for j, other := range net.hosts {
			if i == j {
				continue
			}
			info := peer.AddrInfo{ID: other.ID(), Addrs: other.Addrs()}
			if err := h.Connect(runCtx, info); err != nil {
				net.Close()
				return nil, fmt.Errorf("gossip: connect host %d to %d: %w", i, j, err)
			}
		}
	}

	for i, h := range net.hosts {
		m, err := NewManager(runCtx, h, log.New("gossip-replica", i))
		if err != nil {
			net.Close()
			return nil, err
		}
		if err := m.Join(); err != nil {
			net.Close()
			return nil, err
		}
		net.managers = append(net.managers, m)

		out := make(chan core.Broadcast[B], bufferSize)
		net.outs = append(net.outs, out)

		i, m, out := i, m, out
		go func() {
			defer close(out)
			for data := range m.Recv(runCtx) {
				b, err := net.codec.Decode(data)
				if err != nil {
					log.Warn("gossip: dropping undecodable message", "replica", i, "err", err)
					continue
				}
				select {
				case out <- b:
				case <-runCtx.Done():
					return
				}
			}
		}()
	}

	return net, nil
}

// Incoming returns replica i's channel of decoded broadcasts, mirroring
// the channel transport.Bus.Join returns.
func (n *Network[B]) Incoming(i int) <-chan core.Broadcast[B] {
	return n.outs[i]
}

// Send publishes msg from replica i to the mesh and also feeds it back
// onto replica i's own Incoming channel: spec §5 requires a replica to
// see its own broadcasts, but Manager.Recv deliberately skips messages a
// host published itself (it has no reason to round-trip through the
// network), so self-delivery has to happen here instead.
func (n *Network[B]) Send(i int, msg core.Broadcast[B]) error {
	select {
	case n.outs[i] <- msg:
	default:
		n.log.Warn("gossip: self-delivery channel full, dropping", "replica", i)
	}

	data, err := n.codec.Encode(msg)
	if err != nil {
		return err
	}
	return n.managers[i].Publish(n.ctx, data)
}

// Close tears down every manager and host in the mesh.
func (n *Network[B]) Close() {
	n.cancel()
	for _, m := range n.managers {
		m.Close()
	}
	for _, h := range n.hosts {
		_ = h.Close()
	}
}
