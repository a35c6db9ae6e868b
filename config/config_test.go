package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escrowscan.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
ListenAddress = ":9090"
DefaultNetwork = "testnet"

[[Networks]]
Name = "testnet"
RPCURL = "https://soroban-testnet.stellar.org"
Passphrase = "Test SDF Network ; September 2015"

[[Networks]]
Name = "mainnet"
RPCURL = "https://rpc.example.org"
Passphrase = "Public Global Stellar Network ; September 2015"
`

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowscan.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Len(t, cfg.Networks, 2)
	require.Equal(t, "testnet", cfg.DefaultNetwork)
	require.Equal(t, ":8080", cfg.ListenAddress)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Networks, reloaded.Networks)
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)

	network, ok := cfg.Network("MAINNET")
	require.True(t, ok, "network lookup must be case-insensitive")
	require.Equal(t, "https://rpc.example.org", network.RPCURL)

	fallback, ok := cfg.Network("")
	require.True(t, ok)
	require.Equal(t, "testnet", fallback.Name)

	_, ok = cfg.Network("devnet")
	require.False(t, ok)
}

func TestLoadRequiresExactlyTwoNetworks(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[Networks]]
Name = "testnet"
RPCURL = "https://soroban-testnet.stellar.org"
Passphrase = "Test SDF Network ; September 2015"
`))
	require.ErrorContains(t, err, "exactly two networks")
}

func TestLoadRejectsDuplicateNetworks(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[Networks]]
Name = "testnet"
RPCURL = "https://a.example.org"
Passphrase = "a"

[[Networks]]
Name = "Testnet"
RPCURL = "https://b.example.org"
Passphrase = "b"
`))
	require.ErrorContains(t, err, "duplicate network")
}

func TestLoadRejectsMissingPassphrase(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[Networks]]
Name = "testnet"
RPCURL = "https://a.example.org"
Passphrase = "a"

[[Networks]]
Name = "mainnet"
RPCURL = "https://b.example.org"
`))
	require.ErrorContains(t, err, "missing a passphrase")
}

func TestLoadRejectsUnknownDefaultNetwork(t *testing.T) {
	_, err := Load(writeConfig(t, `
DefaultNetwork = "devnet"

[[Networks]]
Name = "testnet"
RPCURL = "https://a.example.org"
Passphrase = "a"

[[Networks]]
Name = "mainnet"
RPCURL = "https://b.example.org"
Passphrase = "b"
`))
	require.ErrorContains(t, err, "default network")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ESCROWSCAN_LISTEN", ":7777")
	t.Setenv("ESCROWSCAN_RPC_URL_MAINNET", "https://override.example.org")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.ListenAddress)

	network, ok := cfg.Network("mainnet")
	require.True(t, ok)
	require.Equal(t, "https://override.example.org", network.RPCURL)

	unchanged, ok := cfg.Network("testnet")
	require.True(t, ok)
	require.Equal(t, "https://soroban-testnet.stellar.org", unchanged.RPCURL)
}
