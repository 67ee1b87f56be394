package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rentescrow/crypto"
	"rentescrow/native/rental"
)

func testAddress(fill byte) string {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return crypto.FormatAddress(addr)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Rental, reloaded.Rental)
	require.Equal(t, cfg.RPC, reloaded.RPC)
}

func TestLoadParsesRentalSettings(t *testing.T) {
	owner := testAddress(0x01)
	path := writeConfig(t, `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
NetworkName = "testnet"

[Log]
Level = "debug"
File = "rentald.log"

[Rental]
NamespaceTag = "rental-test"
PayoutMode = "escrow"
RecordDeposit = "25"
Paused = ["rental"]

[RPC]
RateLimitPerSec = 5.5
RateLimitBurst = 10

[Telemetry]
Traces = true
Headers = "x-api-key=abc"

[Genesis]
Time = "2024-01-01T00:00:00Z"

[[Genesis.Accounts]]
Address = "`+owner+`"
Balance = "1000"

[[Genesis.Assets]]
Owner = "`+owner+`"
Mint = "0x`+strings.Repeat("7a", 32)+`"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Telemetry.Traces)
	require.Equal(t, 5.5, cfg.RPC.RateLimitPerSec)
	// untouched keys keep their defaults
	require.Equal(t, "RENTAL_RPC_JWT_SECRET", cfg.RPC.JWTSecretEnv)

	runtime, err := cfg.RentalRuntime()
	require.NoError(t, err)
	require.Equal(t, rental.PayoutEscrow, runtime.Payout)
	require.EqualValues(t, 25, runtime.RecordDeposit.Int64())
	require.Equal(t, "rental-test", runtime.NamespaceTag)

	spec, err := cfg.GenesisSpec()
	require.NoError(t, err)
	require.NotNil(t, spec)
	require.Equal(t, "1000", spec.Alloc[owner])
	require.Len(t, spec.Assets, 1)
	require.Equal(t, []string{"rental"}, spec.Paused)
	require.Equal(t, 2024, spec.GenesisTimestamp().Year())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `DataDir = "./data"
ValidatorKey = "deadbeef"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ValidatorKey")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"payout", func(c *Config) { c.Rental.PayoutMode = "renter" }, "PayoutMode"},
		{"deposit", func(c *Config) { c.Rental.RecordDeposit = "-1" }, "RecordDeposit"},
		{"datadir", func(c *Config) { c.DataDir = " " }, "DataDir"},
		{"burst", func(c *Config) { c.RPC.RateLimitBurst = 0 }, "RateLimitBurst"},
		{"tag", func(c *Config) { c.Rental.NamespaceTag = strings.Repeat("x", 33) }, "NamespaceTag"},
		{"genesis", func(c *Config) {
			c.GenesisFile = "genesis.json"
			c.Genesis.Accounts = []GenesisAccount{{Address: testAddress(1), Balance: "1"}}
		}, "mutually exclusive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestGenesisSpecEmptyWhenUnset(t *testing.T) {
	spec, err := Default().GenesisSpec()
	require.NoError(t, err)
	require.Nil(t, spec)
}

func TestResolvePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/rental"
	require.Equal(t, filepath.Join("/var/lib/rental", "journal.db"), cfg.ResolvePath("journal.db"))
	require.Equal(t, "/tmp/x.db", cfg.ResolvePath("/tmp/x.db"))
	require.Equal(t, ":memory:", cfg.ResolvePath(":memory:"))
}
