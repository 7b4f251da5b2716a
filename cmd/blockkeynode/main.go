// Command blockkeynode is a demo/integration harness, not a production
// CLI: it wires a small in-process committee together over either the
// in-memory transport.Bus or (with --gossip) a real libp2p GossipSub
// mesh, optionally exposes the rpc introspection surface for one
// replica, and prints every commit until interrupted. spec.md keeps a
// production CLI surface out of scope; this exists so the engine can be
// exercised end to end without writing a test.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mileswatson/blockkey/app/memapp"
	"github.com/mileswatson/blockkey/config"
	"github.com/mileswatson/blockkey/core"
	"github.com/mileswatson/blockkey/core/accountability"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/internal/xlog"
	"github.com/mileswatson/blockkey/rpc"
	"github.com/mileswatson/blockkey/transport"
	"github.com/mileswatson/blockkey/transport/gossip"
)

// replicaLink is what a transport hands a replica: a channel of
// incoming broadcasts and a function to publish an outgoing one. Both
// transportLinks implementations (in-memory Bus, libp2p gossip Network)
// are adapted to this shape so runDemo's replica-construction loop
// doesn't care which transport backs it.
type replicaLink struct {
	incoming <-chan core.Broadcast[memapp.Block]
	send     func(core.Broadcast[memapp.Block])
}

// transportLinks starts the chosen transport for an n-replica committee
// and returns one replicaLink per replica plus a teardown func.
func transportLinks(ctx context.Context, n int, useGossip bool, log xlog.Logger) ([]replicaLink, func(), error) {
	if useGossip {
		net, err := gossip.NewNetwork[memapp.Block](ctx, n, 256, log.New("component", "gossip"))
		if err != nil {
			return nil, nil, fmt.Errorf("blockkeynode: start gossip network: %w", err)
		}
		links := make([]replicaLink, n)
		for i := 0; i < n; i++ {
			i := i
			links[i] = replicaLink{
				incoming: net.Incoming(i),
				send: func(b core.Broadcast[memapp.Block]) {
					if err := net.Send(i, b); err != nil {
						log.Warn("gossip publish failed", "replica", i, "err", err)
					}
				},
			}
		}
		return links, net.Close, nil
	}

	bus := transport.NewBus[core.Broadcast[memapp.Block]]()
	links := make([]replicaLink, n)
	for i := 0; i < n; i++ {
		peerId, incoming := bus.Join(256)
		links[i] = replicaLink{
			incoming: incoming,
			send:     func(b core.Broadcast[memapp.Block]) { bus.Send(peerId, b) },
		}
	}
	return links, bus.Close, nil
}

// metricsReportInterval is how often a MetricsReporter writes a point
// once metrics are enabled via cfg.MetricsURL.
const metricsReportInterval = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var validators int
	var rpcAddr string
	var logLevel string
	var metricsURL, metricsToken, metricsOrg, metricsBucket string
	var useGossip bool

	cmd := &cobra.Command{
		Use:   "blockkeynode",
		Short: "Run an in-process demo committee of Tendermint replicas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.RPCAddress = rpcAddr
			cfg.LogLevel = logLevel
			cfg.MetricsURL = metricsURL
			cfg.MetricsToken = metricsToken
			cfg.MetricsOrg = metricsOrg
			cfg.MetricsBucket = metricsBucket
			return runDemo(cmd.Context(), validators, cfg, useGossip)
		},
	}

	cmd.Flags().IntVar(&validators, "validators", 4, "size of the demo committee")
	cmd.Flags().StringVar(&rpcAddr, "rpc", "", "address to serve read-only introspection on (empty disables it)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error or crit")
	cmd.Flags().StringVar(&metricsURL, "metrics-url", "", "InfluxDB server URL to report consensus metrics to (empty disables metrics)")
	cmd.Flags().StringVar(&metricsToken, "metrics-token", "", "InfluxDB auth token")
	cmd.Flags().StringVar(&metricsOrg, "metrics-org", "", "InfluxDB organization")
	cmd.Flags().StringVar(&metricsBucket, "metrics-bucket", "", "InfluxDB bucket")
	cmd.Flags().BoolVar(&useGossip, "gossip", false, "carry consensus traffic over a real libp2p GossipSub mesh instead of the in-memory bus")

	return cmd
}

func runDemo(parent context.Context, n int, cfg config.NodeConfig, useGossip bool) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := xlog.New(os.Stderr, cfg.LogLevelValue(), true)

	committee := make([]memapp.Validator, n)
	for i := range committee {
		priv, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("blockkeynode: generate key %d: %w", i, err)
		}
		committee[i] = memapp.Validator{Key: priv, Weight: 1}
	}

	g, gctx := errgroup.WithContext(ctx)

	links, closeTransport, err := transportLinks(gctx, n, useGossip, log)
	if err != nil {
		return err
	}
	defer closeTransport()

	proposeBackoff := core.LinearBackoff(cfg.Timeouts.ProposeTimeout(), cfg.Timeouts.Max())
	prevoteBackoff := core.LinearBackoff(cfg.Timeouts.PrevoteTimeout(), cfg.Timeouts.Max())
	precommitBackoff := core.LinearBackoff(cfg.Timeouts.PrecommitTimeout(), cfg.Timeouts.Max())
	timeouts := func(kind core.TimeoutKind, round uint64) time.Duration {
		switch kind {
		case core.TimeoutPrevote:
			return prevoteBackoff(kind, round)
		case core.TimeoutPrecommit:
			return precommitBackoff(kind, round)
		default:
			return proposeBackoff(kind, round)
		}
	}

	apps := make([]*memapp.App, n)
	replicas := make([]*core.Tendermint[memapp.Block], n)
	evidence := make([]*accountability.Pool[memapp.Block], n)
	for i, v := range committee {
		apps[i] = memapp.New(v.Key, committee, log.New("replica", i))
		evidence[i] = accountability.NewPool[memapp.Block]()
		outgoing := make(chan core.Broadcast[memapp.Block], 256)
		replicas[i] = core.NewTendermint[memapp.Block](
			apps[i], links[i].incoming, outgoing,
			timeouts,
			evidence[i],
		)

		i, outgoing := i, outgoing
		g.Go(func() error {
			for {
				select {
				case b, ok := <-outgoing:
					if !ok {
						return nil
					}
					links[i].send(b)
				case <-gctx.Done():
					return nil
				}
			}
		})
		g.Go(func() error {
			err := replicas[i].Run()
			if gctx.Err() != nil {
				return nil // shutting down; a closed-channel error is expected
			}
			return err
		})
	}

	if cfg.MetricsURL != "" {
		reporter := core.NewMetricsReporter[memapp.Block](
			cfg.MetricsURL, cfg.MetricsToken, cfg.MetricsOrg, cfg.MetricsBucket,
			replicas[0], log.New("component", "metrics"),
		)
		g.Go(func() error {
			reporter.Run(gctx, metricsReportInterval)
			return nil
		})
	}

	if cfg.RPCAddress != "" {
		server := rpc.NewServer[memapp.Block](replicas[0], func(uint64) (int, int, int) { return 0, 0, 0 })
		g.Go(func() error {
			log.Info("serving introspection", "addr", cfg.RPCAddress)
			return server.ListenAndServe(cfg.RPCAddress)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Info("progress", "commits", len(apps[0].Commits()), "height", replicas[0].Status().Height)
				for i, pool := range evidence {
					for _, ev := range pool.Pending() {
						log.Warn("equivocation evidence", "replica", i, "height", ev.Height, "round", ev.Round, "signer", ev.Signer.String())
					}
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	<-gctx.Done()
	closeTransport()
	_ = g.Wait()
	return nil
}
