// Package simulated implements an in-process, scriptable wallet provider.
// It behaves like a browser wallet holding a fixed set of accounts: accounts
// are only exposed after eth_requestAccounts, switching to an unknown chain
// fails with code 4902 and wallet_addEthereumChain adds and selects it.
package simulated

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethevent "github.com/ethereum/go-ethereum/event"

	"walletlink/internal/web3"
)

// HandlerFunc overrides the behaviour of a single method.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

// Config seeds the simulated wallet.
type Config struct {
	Accounts    []string
	ChainID     uint64
	KnownChains []uint64
	// Authorized exposes the accounts through eth_accounts without a prior
	// eth_requestAccounts, as for a site the user connected earlier.
	Authorized bool
}

// Provider is a scriptable web3.Provider.
type Provider struct {
	mu         sync.Mutex
	accounts   []string
	authorized bool
	chainID    uint64
	known      map[uint64]bool
	failures   map[string]error
	gates      map[string]chan struct{}
	handlers   map[string]HandlerFunc
	calls      []web3.RequestArguments

	accountsFeed gethevent.Feed
	chainFeed    gethevent.Feed
	scope        gethevent.SubscriptionScope
}

var _ web3.Provider = (*Provider)(nil)

// New creates a simulated provider.
func New(cfg Config) *Provider {
	p := &Provider{
		accounts:   append([]string(nil), cfg.Accounts...),
		authorized: cfg.Authorized,
		chainID:    cfg.ChainID,
		known:      make(map[uint64]bool),
		failures:   make(map[string]error),
		gates:      make(map[string]chan struct{}),
		handlers:   make(map[string]HandlerFunc),
	}
	if p.chainID == 0 {
		p.chainID = 1
	}
	p.known[p.chainID] = true
	for _, id := range cfg.KnownChains {
		p.known[id] = true
	}
	return p
}

// Request implements web3.Provider.
func (p *Provider) Request(ctx context.Context, args web3.RequestArguments, result any) error {
	params, err := roundTrip(args.Params)
	if err != nil {
		return web3.NewProviderError(-32602, fmt.Sprintf("invalid params: %v", err))
	}

	p.mu.Lock()
	p.calls = append(p.calls, web3.RequestArguments{Method: args.Method, Params: params})
	gate := p.gates[args.Method]
	failure := p.failures[args.Method]
	handler := p.handlers[args.Method]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}

	var value any
	if handler != nil {
		value, err = handler(ctx, params)
	} else {
		value, err = p.dispatch(args.Method, params)
	}
	if err != nil {
		return err
	}
	return decodeInto(value, result)
}

func (p *Provider) dispatch(method string, params []any) (any, error) {
	switch method {
	case web3.MethodAccounts:
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.authorized {
			return []string{}, nil
		}
		return append([]string{}, p.accounts...), nil
	case web3.MethodRequestAccounts:
		p.mu.Lock()
		defer p.mu.Unlock()
		p.authorized = true
		return append([]string{}, p.accounts...), nil
	case web3.MethodChainID:
		p.mu.Lock()
		defer p.mu.Unlock()
		return web3.EncodeChainID(p.chainID), nil
	case web3.MethodSwitchChain:
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		if !p.known[id] {
			p.mu.Unlock()
			return nil, web3.NewProviderError(web3.CodeUnrecognizedChain,
				fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", web3.EncodeChainID(id)))
		}
		p.mu.Unlock()
		p.SetChain(id)
		return nil, nil
	case web3.MethodAddChain:
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.known[id] = true
		p.mu.Unlock()
		p.SetChain(id)
		return nil, nil
	default:
		return nil, web3.NewProviderError(web3.CodeUnsupportedMethod, fmt.Sprintf("method %s is not supported", method))
	}
}

func chainParam(params []any) (uint64, error) {
	if len(params) == 0 {
		return 0, web3.NewProviderError(-32602, "missing chain parameter")
	}
	obj, ok := params[0].(map[string]any)
	if !ok {
		return 0, web3.NewProviderError(-32602, "chain parameter must be an object")
	}
	raw, _ := obj["chainId"].(string)
	id, err := web3.DecodeChainID(raw)
	if err != nil {
		return 0, web3.NewProviderError(-32602, err.Error())
	}
	return id, nil
}

// SubscribeAccountsChanged implements web3.Provider.
func (p *Provider) SubscribeAccountsChanged(ch chan<- []string) gethevent.Subscription {
	return p.scope.Track(p.accountsFeed.Subscribe(ch))
}

// SubscribeChainChanged implements web3.Provider.
func (p *Provider) SubscribeChainChanged(ch chan<- string) gethevent.Subscription {
	return p.scope.Track(p.chainFeed.Subscribe(ch))
}

// Close ends every subscription.
func (p *Provider) Close() {
	p.scope.Close()
}

// SetAccounts replaces the wallet accounts and emits accountsChanged when
// the site is authorised.
func (p *Provider) SetAccounts(accounts ...string) {
	p.mu.Lock()
	p.accounts = append([]string(nil), accounts...)
	authorized := p.authorized
	p.mu.Unlock()
	if authorized {
		p.accountsFeed.Send(append([]string{}, accounts...))
	}
}

// SetChain selects chainID and emits chainChanged.
func (p *Provider) SetChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	p.known[chainID] = true
	p.mu.Unlock()
	p.chainFeed.Send(web3.EncodeChainID(chainID))
}

// EmitAccountsChanged delivers a raw accountsChanged payload without
// touching the wallet state.
func (p *Provider) EmitAccountsChanged(accounts []string) int {
	return p.accountsFeed.Send(accounts)
}

// EmitChainChanged delivers a raw chainChanged payload without touching the
// wallet state.
func (p *Provider) EmitChainChanged(chainID string) int {
	return p.chainFeed.Send(chainID)
}

// Fail makes every later call to method return err. A nil err clears it.
func (p *Provider) Fail(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, method)
		return
	}
	p.failures[method] = err
}

// Handle overrides method with fn. A nil fn restores the default.
func (p *Provider) Handle(method string, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		delete(p.handlers, method)
		return
	}
	p.handlers[method] = fn
}

// Block holds calls to method until the returned release function runs or
// the caller's context ends.
func (p *Provider) Block(method string) (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gates[method] = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.gates[method] == gate {
				delete(p.gates, method)
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the recorded requests in arrival order.
func (p *Provider) Calls() []web3.RequestArguments {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]web3.RequestArguments(nil), p.calls...)
}

// CallCount returns how many times method was requested.
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, call := range p.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// ValidAccounts reports whether every account is a well-formed address.
func ValidAccounts(accounts []string) bool {
	for _, account := range accounts {
		if !common.IsHexAddress(account) {
			return false
		}
	}
	return true
}

func roundTrip(params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(value, result any) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}
