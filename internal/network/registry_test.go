package network

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryBuiltins(t *testing.T) {
	r := Default()

	polygon, ok := r.Lookup(137)
	require.True(t, ok)
	require.Equal(t, "Polygon", polygon.ChainName)
	require.Equal(t, "MATIC", polygon.NativeCurrency.Symbol)
	require.Equal(t, uint8(18), polygon.NativeCurrency.Decimals)
	require.Equal(t, []string{"https://polygon-rpc.com/"}, polygon.RPCURLs)
	require.Equal(t, []string{"https://polygonscan.com/"}, polygon.BlockExplorerURLs)

	bsc, ok := r.Lookup(56)
	require.True(t, ok)
	require.Equal(t, "Binance Smart Chain", bsc.ChainName)
	require.Equal(t, []string{"https://bsc-dataseed1.binance.org/"}, bsc.RPCURLs)

	eth, ok := r.Lookup(1)
	require.True(t, ok)
	require.Equal(t, []string{"https://mainnet.infura.io/v3/"}, eth.RPCURLs)
	require.Equal(t, []string{"https://etherscan.io/"}, eth.BlockExplorerURLs)
	require.Equal(t, NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18}, eth.NativeCurrency)

	_, ok = r.Lookup(11155111)
	require.False(t, ok)
}

func TestDescriptorsSorted(t *testing.T) {
	ids := []uint64{}
	for _, d := range Default().Descriptors() {
		ids = append(ids, d.ChainID)
	}
	require.Equal(t, []uint64{1, 56, 137}, ids)
}

func TestLookupReturnsCopy(t *testing.T) {
	r := Default()
	d, _ := r.Lookup(1)
	d.RPCURLs[0] = "mutated"

	again, _ := r.Lookup(1)
	require.Equal(t, "https://mainnet.infura.io/v3/", again.RPCURLs[0])
}

func TestAddChainParameterJSON(t *testing.T) {
	d, _ := Default().Lookup(137)
	raw, err := json.Marshal(d.AddChainParameter())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"chainId": "0x89",
		"chainName": "Polygon",
		"nativeCurrency": {"name": "MATIC", "symbol": "MATIC", "decimals": 18},
		"rpcUrls": ["https://polygon-rpc.com/"],
		"blockExplorerUrls": ["https://polygonscan.com/"]
	}`, string(raw))
}

func TestLabel(t *testing.T) {
	require.Equal(t, "Ethereum", Label(1))
	require.Equal(t, "BSC", Label(56))
	require.Equal(t, "Polygon", Label(137))
	require.Equal(t, "Sepolia", Label(11155111))
	require.Equal(t, "Chain 42161", Label(42161))
}

func TestNewRegistryValidates(t *testing.T) {
	_, err := NewRegistry(Descriptor{ChainName: "zero"})
	require.Error(t, err)

	_, err = NewRegistry(Descriptor{ChainID: 10, ChainName: "Optimism"})
	require.Error(t, err)
}

func TestLoadFileMergesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `networks:
  - chain_id: 11155111
    chain_name: Sepolia
    native_currency: {name: Sepolia Ether, symbol: ETH, decimals: 18}
    rpc_urls: ["https://rpc.sepolia.org"]
    block_explorer_urls: ["https://sepolia.etherscan.io"]
  - chain_id: 137
    chain_name: Polygon Mainnet
    native_currency: {name: POL, symbol: POL, decimals: 18}
    rpc_urls: ["https://polygon.llamarpc.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)

	sepolia, ok := r.Lookup(11155111)
	require.True(t, ok)
	require.Equal(t, "0xaa36a7", sepolia.AddChainParameter().ChainID)

	polygon, _ := r.Lookup(137)
	require.Equal(t, "Polygon Mainnet", polygon.ChainName)
	require.Len(t, r.Descriptors(), 4)
}

func TestLoadFileEmptyPath(t *testing.T) {
	r, err := LoadFile("  ")
	require.NoError(t, err)
	require.Len(t, r.Descriptors(), 3)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  - chain_id: 0\n"), 0o600))
	_, err := LoadFile(path)
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
