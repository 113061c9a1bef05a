// Package ethereum implements web3.Provider over the JSON-RPC endpoint of a
// wallet (for example Frame on ws://127.0.0.1:1248). Wallet notifications are
// taken from eth_subscribe when the transport supports it and otherwise
// reconstructed by polling eth_accounts and eth_chainId.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"walletlink/internal/web3"
	"walletlink/pkg/logger"
)

// DefaultPollInterval is used when the endpoint cannot push notifications.
const DefaultPollInterval = 2 * time.Second

const (
	minResubscribeDelay = 100 * time.Millisecond
	maxResubscribeDelay = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription closed")

// Config describes how to reach the wallet endpoint.
type Config struct {
	Endpoint     string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Provider talks to a wallet over go-ethereum's RPC client.
type Provider struct {
	rpcClient    *gethrpc.Client
	pollInterval time.Duration
	logger       *slog.Logger

	accountsFeed gethevent.Feed
	chainFeed    gethevent.Feed
	scope        gethevent.SubscriptionScope

	watchOnce sync.Once
	startOnce sync.Once
	started   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ web3.Provider = (*Provider)(nil)

// Dial connects to the configured endpoint.
func Dial(ctx context.Context, cfg Config) (*Provider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("未配置钱包 RPC 地址")
	}
	client, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("连接钱包节点失败: %w", err)
	}
	return NewProvider(client, cfg), nil
}

// NewProvider wraps an existing RPC client. The provider takes ownership of
// client and closes it on Close.
func NewProvider(client *gethrpc.Client, cfg Config) *Provider {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("ethereum")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		rpcClient:    client,
		pollInterval: interval,
		logger:       log,
		started:      make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Request implements web3.Provider. JSON-RPC errors keep their numeric code
// through go-ethereum's rpc.Error.
func (p *Provider) Request(ctx context.Context, args web3.RequestArguments, result any) error {
	if p == nil || p.rpcClient == nil {
		return errors.New("未初始化的钱包客户端")
	}
	return p.rpcClient.CallContext(ctx, result, args.Method, args.Params...)
}

// SubscribeAccountsChanged implements web3.Provider.
func (p *Provider) SubscribeAccountsChanged(ch chan<- []string) gethevent.Subscription {
	sub := p.scope.Track(p.accountsFeed.Subscribe(ch))
	p.startWatching()
	return sub
}

// SubscribeChainChanged implements web3.Provider.
func (p *Provider) SubscribeChainChanged(ch chan<- string) gethevent.Subscription {
	sub := p.scope.Track(p.chainFeed.Subscribe(ch))
	p.startWatching()
	return sub
}

// Close stops the watcher, ends every subscription and releases the
// connection.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.scope.Close()
		if p.rpcClient != nil {
			p.rpcClient.Close()
		}
	})
}

func (p *Provider) startWatching() {
	p.watchOnce.Do(func() {
		p.wg.Add(1)
		go p.watch()
	})
}

// watch bridges eth_subscribe notifications into the feeds. An endpoint
// that cannot subscribe at all is polled instead. Once subscribed, a dropped
// subscription is re-established with backoff and the current accounts and
// chain are re-emitted, since changes made while disconnected were missed.
func (p *Provider) watch() {
	defer p.wg.Done()
	defer p.markStarted()

	backoff := minResubscribeDelay
	for attempt := 0; ; attempt++ {
		established, err := p.subscribe(attempt > 0)
		if p.ctx.Err() != nil {
			return
		}
		if !established && attempt == 0 {
			p.fallback(err)
			return
		}
		if established {
			backoff = minResubscribeDelay
		}
		p.logger.Warn("wallet notifications ended, resubscribing", slog.Any("error", err), slog.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-p.ctx.Done():
			return
		}
		backoff = min(backoff*2, maxResubscribeDelay)
	}
}

// subscribe opens both notification subscriptions and forwards them until
// one of them ends. established reports whether both were opened.
func (p *Provider) subscribe(resync bool) (established bool, err error) {
	accounts := make(chan []string, 16)
	chains := make(chan string, 16)
	accountsSub, err := p.rpcClient.EthSubscribe(p.ctx, accounts, web3.EventAccountsChanged)
	if err != nil {
		return false, err
	}
	defer accountsSub.Unsubscribe()
	chainSub, err := p.rpcClient.EthSubscribe(p.ctx, chains, web3.EventChainChanged)
	if err != nil {
		return false, err
	}
	defer chainSub.Unsubscribe()

	p.logger.Info("wallet notifications subscribed", slog.Bool("resubscribed", resync))
	p.markStarted()
	if resync {
		p.resync()
	}

	for {
		select {
		case list := <-accounts:
			p.accountsFeed.Send(list)
		case raw := <-chains:
			p.chainFeed.Send(raw)
		case err := <-accountsSub.Err():
			return true, fmt.Errorf("accountsChanged: %w", errOrClosed(err))
		case err := <-chainSub.Err():
			return true, fmt.Errorf("chainChanged: %w", errOrClosed(err))
		case <-p.ctx.Done():
			return true, p.ctx.Err()
		}
	}
}

// resync emits the wallet's current accounts and chain.
func (p *Provider) resync() {
	var accounts []string
	if err := p.Request(p.ctx, web3.RequestArguments{Method: web3.MethodAccounts}, &accounts); err != nil {
		p.logger.Warn("resync eth_accounts failed", slog.Any("error", err))
	} else {
		if accounts == nil {
			accounts = []string{}
		}
		p.accountsFeed.Send(accounts)
	}
	var chain string
	if err := p.Request(p.ctx, web3.RequestArguments{Method: web3.MethodChainID}, &chain); err != nil {
		p.logger.Warn("resync eth_chainId failed", slog.Any("error", err))
	} else {
		p.chainFeed.Send(chain)
	}
}

func errOrClosed(err error) error {
	if err == nil {
		return errSubscriptionClosed
	}
	return err
}

func (p *Provider) markStarted() {
	p.startOnce.Do(func() { close(p.started) })
}

func (p *Provider) fallback(err error) {
	if errors.Is(err, gethrpc.ErrNotificationsUnsupported) {
		p.logger.Info("wallet endpoint cannot push notifications, polling", slog.Duration("interval", p.pollInterval))
	} else {
		p.logger.Warn("wallet notification subscription failed, polling", slog.Any("error", err), slog.Duration("interval", p.pollInterval))
	}
	p.poll()
}

// poll compares eth_accounts and eth_chainId against the last observed
// values and emits the matching event on every change. The first successful
// read only sets the baseline.
func (p *Provider) poll() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var (
		lastAccounts []string
		lastChain    string
		haveAccounts bool
		haveChain    bool
	)
	check := func() {
		var accounts []string
		if err := p.Request(p.ctx, web3.RequestArguments{Method: web3.MethodAccounts}, &accounts); err != nil {
			p.logger.Debug("poll eth_accounts failed", slog.Any("error", err))
		} else {
			if accounts == nil {
				accounts = []string{}
			}
			if haveAccounts && !slices.Equal(accounts, lastAccounts) {
				p.accountsFeed.Send(accounts)
			}
			lastAccounts, haveAccounts = accounts, true
		}

		var chain string
		if err := p.Request(p.ctx, web3.RequestArguments{Method: web3.MethodChainID}, &chain); err != nil {
			p.logger.Debug("poll eth_chainId failed", slog.Any("error", err))
		} else {
			if haveChain && !strings.EqualFold(chain, lastChain) {
				p.chainFeed.Send(chain)
			}
			lastChain, haveChain = chain, true
		}
	}

	check()
	p.markStarted()
	for {
		select {
		case <-ticker.C:
			check()
		case <-p.ctx.Done():
			return
		}
	}
}
