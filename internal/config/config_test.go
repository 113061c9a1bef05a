package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSONAppliesDefaults(t *testing.T) {
	path := writeFile(t, "walletd.json", `{"provider": {"driver": "simulated", "simulated": {"accounts": ["0xabc"], "chain_id": 137}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.Server.Address)
	require.Equal(t, "simulated", cfg.Provider.Driver)
	require.Empty(t, cfg.Provider.Endpoint)
	require.Equal(t, uint64(137), cfg.Provider.Simulated.ChainID)
	require.Equal(t, 2, cfg.Provider.PollIntervalSeconds)
	require.Equal(t, "memory", cfg.Journal.Driver)
	require.Equal(t, 512, cfg.Journal.Capacity)
	require.Equal(t, "none", cfg.Relay.Driver)
	require.Equal(t, "walletlink:session", cfg.Relay.Redis.Prefix)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadYAMLResolvesRelativePaths(t *testing.T) {
	path := writeFile(t, "walletd.yaml", `
server:
  address: 127.0.0.1:9000
  token: secret
provider:
  driver: RPC
networks:
  file: networks.yaml
log:
  audit:
    enabled: true
    path: logs/audit.log
`)
	baseDir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	require.Equal(t, "secret", cfg.Server.Token)
	require.Equal(t, "rpc", cfg.Provider.Driver)
	require.Equal(t, "ws://127.0.0.1:1248", cfg.Provider.Endpoint)
	require.Equal(t, filepath.Join(baseDir, "networks.yaml"), cfg.Networks.File)
	require.Equal(t, filepath.Join(baseDir, "logs", "audit.log"), cfg.Log.Audit.Path)
}

func TestLoadRejectsInvalidDrivers(t *testing.T) {
	cases := []string{
		`{"provider": {"driver": "metamask"}}`,
		`{"journal": {"driver": "mysql"}}`,
		`{"relay": {"driver": "redis"}}`,
		`{"relay": {"driver": "rabbitmq"}}`,
		`{"relay": {"driver": "kafka"}}`,
	}
	for _, content := range cases {
		_, err := Load(writeFile(t, "walletd.json", content))
		require.Error(t, err, content)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "broken.json", "{"))
	require.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvPath, "/etc/walletd.yaml")
	require.Equal(t, "/etc/walletd.yaml", ResolvePath(""))
	require.Equal(t, "local.json", ResolvePath("local.json"))
}

func TestDefault(t *testing.T) {
	cfg := Default("/srv")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "rpc", cfg.Provider.Driver)
}
