// Package network holds the static metadata of the chains walletlink can ask
// a wallet to add, keyed by numeric chain id.
package network

import (
	"fmt"
	"sort"
	"sync"

	"walletlink/internal/web3"
)

// NativeCurrency describes the gas token of a chain.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// Descriptor is the immutable metadata of one chain.
type Descriptor struct {
	ChainID           uint64         `json:"chainId" yaml:"chain_id"`
	ChainName         string         `json:"chainName" yaml:"chain_name"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
	RPCURLs           []string       `json:"rpcUrls" yaml:"rpc_urls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls" yaml:"block_explorer_urls"`
}

// AddChainParameter is the EIP-3085 wallet_addEthereumChain parameter object.
type AddChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// AddChainParameter renders the descriptor as a wallet_addEthereumChain
// payload with the chain id in hex.
func (d Descriptor) AddChainParameter() AddChainParameter {
	return AddChainParameter{
		ChainID:           web3.EncodeChainID(d.ChainID),
		ChainName:         d.ChainName,
		NativeCurrency:    d.NativeCurrency,
		RPCURLs:           append([]string(nil), d.RPCURLs...),
		BlockExplorerURLs: append([]string(nil), d.BlockExplorerURLs...),
	}
}

func (d Descriptor) validate() error {
	if d.ChainID == 0 {
		return fmt.Errorf("network %q: chain id must be positive", d.ChainName)
	}
	if d.ChainName == "" {
		return fmt.Errorf("network %d: chain name is required", d.ChainID)
	}
	if len(d.RPCURLs) == 0 {
		return fmt.Errorf("network %d: at least one rpc url is required", d.ChainID)
	}
	if d.NativeCurrency.Symbol == "" {
		return fmt.Errorf("network %d: native currency symbol is required", d.ChainID)
	}
	return nil
}

func (d Descriptor) clone() Descriptor {
	d.RPCURLs = append([]string(nil), d.RPCURLs...)
	d.BlockExplorerURLs = append([]string(nil), d.BlockExplorerURLs...)
	return d
}

var builtins = []Descriptor{
	{
		ChainID:           1,
		ChainName:         "Ethereum Mainnet",
		NativeCurrency:    NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18},
		RPCURLs:           []string{"https://mainnet.infura.io/v3/"},
		BlockExplorerURLs: []string{"https://etherscan.io/"},
	},
	{
		ChainID:           56,
		ChainName:         "Binance Smart Chain",
		NativeCurrency:    NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18},
		RPCURLs:           []string{"https://bsc-dataseed1.binance.org/"},
		BlockExplorerURLs: []string{"https://bscscan.com/"},
	},
	{
		ChainID:           137,
		ChainName:         "Polygon",
		NativeCurrency:    NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		RPCURLs:           []string{"https://polygon-rpc.com/"},
		BlockExplorerURLs: []string{"https://polygonscan.com/"},
	},
}

// Registry is a read-mostly set of descriptors.
type Registry struct {
	mu    sync.RWMutex
	chain map[uint64]Descriptor
}

// Default returns a registry holding the built-in chains.
func Default() *Registry {
	r, _ := NewRegistry(builtins...)
	return r
}

// NewRegistry builds a registry from descs. Later descriptors replace earlier
// ones with the same chain id.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{chain: make(map[uint64]Descriptor, len(descs))}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.chain[d.ChainID] = d.clone()
	r.mu.Unlock()
	return nil
}

// Lookup returns the descriptor for chainID. A missing chain is not an error.
func (r *Registry) Lookup(chainID uint64) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	r.mu.RLock()
	d, ok := r.chain[chainID]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Descriptors returns every descriptor ordered by chain id.
func (r *Registry) Descriptors() []Descriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.chain))
	for _, d := range r.chain {
		out = append(out, d.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

var labels = map[uint64]string{
	1:        "Ethereum",
	56:       "BSC",
	137:      "Polygon",
	11155111: "Sepolia",
}

// SelectableChains lists the chain ids offered by the network selector.
var SelectableChains = []uint64{1, 56, 137, 11155111}

// Label returns the short display name of a chain, falling back to
// "Chain <id>" for unknown ids.
func Label(chainID uint64) string {
	if name, ok := labels[chainID]; ok {
		return name
	}
	return fmt.Sprintf("Chain %d", chainID)
}
