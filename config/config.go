// Package config decodes a replica's on-disk TOML configuration, the
// way the teacher's node decodes geth's config.toml with
// github.com/naoina/toml: validator identity, peers, timeout bases, log
// level, and the optional rpc and metrics endpoints.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/mileswatson/blockkey/internal/xlog"
)

// PeerConfig names one other member of the committee this replica will
// dial or accept gossip from.
type PeerConfig struct {
	Address string `toml:"Address"`
}

// TimeoutConfig sets the base (round-0) duration for each of the three
// per-step timeouts; core.LinearBackoff scales them by round at
// runtime.
type TimeoutConfig struct {
	ProposeBaseMillis   int64 `toml:"ProposeBaseMillis"`
	PrevoteBaseMillis   int64 `toml:"PrevoteBaseMillis"`
	PrecommitBaseMillis int64 `toml:"PrecommitBaseMillis"`
	MaxMillis           int64 `toml:"MaxMillis"`
}

// NodeConfig is the top-level document a replica process loads at
// startup.
type NodeConfig struct {
	// PrivateKeyHex is this replica's secp256k1 signing key, hex-encoded.
	// Loaded from disk rather than generated so a replica's identity
	// survives a restart.
	PrivateKeyHex string `toml:"PrivateKeyHex"`

	ListenAddress string        `toml:"ListenAddress"`
	Peers         []PeerConfig  `toml:"Peers"`
	Timeouts      TimeoutConfig `toml:"Timeouts"`
	LogLevel      string        `toml:"LogLevel"`

	// RPCAddress, if non-empty, starts the read-only introspection
	// surface (rpc package) on this address.
	RPCAddress string `toml:"RPCAddress"`

	// MetricsURL, MetricsToken, MetricsOrg and MetricsBucket configure
	// core.MetricsReporter; MetricsURL empty disables metrics export.
	MetricsURL    string `toml:"MetricsURL"`
	MetricsToken  string `toml:"MetricsToken"`
	MetricsOrg    string `toml:"MetricsOrg"`
	MetricsBucket string `toml:"MetricsBucket"`
}

func Default() NodeConfig {
	return NodeConfig{
		ListenAddress: "127.0.0.1:26656",
		Timeouts: TimeoutConfig{
			ProposeBaseMillis:   1000,
			PrevoteBaseMillis:   1000,
			PrecommitBaseMillis: 1000,
			MaxMillis:           30000,
		},
		LogLevel: "info",
	}
}

// Load reads and decodes a TOML document from path, starting from
// Default() so an omitted field keeps its default rather than
// zero-valuing.
func Load(path string) (NodeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (NodeConfig, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// ProposeTimeout, PrevoteTimeout and PrecommitTimeout convert the
// millisecond fields into time.Durations for core.LinearBackoff.
func (c TimeoutConfig) ProposeTimeout() time.Duration {
	return time.Duration(c.ProposeBaseMillis) * time.Millisecond
}

func (c TimeoutConfig) PrevoteTimeout() time.Duration {
	return time.Duration(c.PrevoteBaseMillis) * time.Millisecond
}

func (c TimeoutConfig) PrecommitTimeout() time.Duration {
	return time.Duration(c.PrecommitBaseMillis) * time.Millisecond
}

func (c TimeoutConfig) Max() time.Duration {
	return time.Duration(c.MaxMillis) * time.Millisecond
}

// LogLevelValue parses LogLevel into an xlog.Level, defaulting to Info
// for an empty or unrecognised value.
func (c NodeConfig) LogLevelValue() xlog.Level {
	switch c.LogLevel {
	case "debug":
		return xlog.LevelDebug
	case "warn":
		return xlog.LevelWarn
	case "error":
		return xlog.LevelError
	case "crit":
		return xlog.LevelCrit
	default:
		return xlog.LevelInfo
	}
}
