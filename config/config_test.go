package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/internal/xlog"
)

const sample = `
PrivateKeyHex = "aabbcc"
ListenAddress = "0.0.0.0:9000"
LogLevel = "debug"

[[Peers]]
Address = "10.0.0.1:9000"

[[Peers]]
Address = "10.0.0.2:9000"

[Timeouts]
ProposeBaseMillis = 500
PrevoteBaseMillis = 500
PrecommitBaseMillis = 500
MaxMillis = 5000
`

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	require.Equal(t, "aabbcc", cfg.PrivateKeyHex)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Len(t, cfg.Peers, 2)
	require.Equal(t, "10.0.0.1:9000", cfg.Peers[0].Address)
	require.Equal(t, xlog.LevelDebug, cfg.LogLevelValue())
}

func TestDecodeFallsBackToDefaultsForOmittedFields(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`PrivateKeyHex = "dd"`))
	require.NoError(t, err)

	require.Equal(t, Default().ListenAddress, cfg.ListenAddress)
	require.Equal(t, Default().Timeouts, cfg.Timeouts)
	require.Equal(t, xlog.LevelInfo, cfg.LogLevelValue())
}

func TestTimeoutConversions(t *testing.T) {
	cfg := TimeoutConfig{ProposeBaseMillis: 250, MaxMillis: 1000}
	require.Equal(t, 250_000_000, int(cfg.ProposeTimeout()))
	require.Equal(t, 1_000_000_000, int(cfg.Max()))
}
